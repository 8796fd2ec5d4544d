package entity

import "time"

// User is an account row in the `users` table. Password holds the digest
// produced by the configured hasher, never the clear text.
type User struct {
	ID        int64      `db:"id"`
	Login     string     `db:"login"`
	Password  string     `db:"password"`
	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt *time.Time `db:"updated_at"`
}

func (*User) TableName() string { return "users" }

func (u *User) Key() map[string]any { return map[string]any{"id": u.ID} }

func (u *User) Values() map[string]any {
	return map[string]any{
		"id":         u.ID,
		"login":      u.Login,
		"password":   u.Password,
		"created_at": u.CreatedAt,
		"updated_at": u.UpdatedAt,
	}
}

func (u *User) GetID() int64             { return u.ID }
func (u *User) SetID(id int64)           { u.ID = id }
func (u *User) SetCreatedAt(t time.Time) { u.CreatedAt = t }
func (u *User) SetUpdatedAt(t time.Time) { u.UpdatedAt = &t }

// View is the outward projection of a user; the digest is left out.
type View struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
}

func (u *User) View() View { return View{ID: u.ID, Login: u.Login} }
