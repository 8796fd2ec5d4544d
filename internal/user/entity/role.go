package entity

import "time"

// Role names seeded by the initial migration.
const (
	RoleUser      = "User"
	RoleAdmin     = "Admin"
	RoleModerator = "Moderator"
)

type Role struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

func (*Role) TableName() string { return "roles" }

func (r *Role) Key() map[string]any { return map[string]any{"id": r.ID} }

func (r *Role) Values() map[string]any {
	return map[string]any{"id": r.ID, "name": r.Name}
}

func (r *Role) GetID() int64   { return r.ID }
func (r *Role) SetID(id int64) { r.ID = id }

// UserRole links one user to one role. The pair is unique by service
// check only; the table has no constraint on it.
type UserRole struct {
	UserID int64 `db:"user_id"`
	RoleID int64 `db:"role_id"`
}

func (*UserRole) TableName() string { return "user_roles" }

func (ur *UserRole) Key() map[string]any {
	return map[string]any{"user_id": ur.UserID, "role_id": ur.RoleID}
}

func (ur *UserRole) Values() map[string]any { return ur.Key() }

// UserToken is the single refresh token row kept per user. It is
// overwritten on every login and never deleted.
type UserToken struct {
	ID                     int64     `db:"id"`
	UserID                 int64     `db:"user_id"`
	RefreshToken           string    `db:"refresh_token"`
	RefreshTokenExpiryTime time.Time `db:"refresh_token_expiry_time"`
}

func (*UserToken) TableName() string { return "user_tokens" }

func (t *UserToken) Key() map[string]any { return map[string]any{"id": t.ID} }

func (t *UserToken) Values() map[string]any {
	return map[string]any{
		"id":                        t.ID,
		"user_id":                   t.UserID,
		"refresh_token":             t.RefreshToken,
		"refresh_token_expiry_time": t.RefreshTokenExpiryTime,
	}
}

func (t *UserToken) GetID() int64   { return t.ID }
func (t *UserToken) SetID(id int64) { t.ID = id }

// Expired reports whether the token is no longer usable at now.
func (t *UserToken) Expired(now time.Time) bool {
	return !now.Before(t.RefreshTokenExpiryTime)
}
