package repo

import (
	"context"

	sq "github.com/Masterminds/squirrel"

	"github.com/ovaphlow/pitchfork/service-diary-core/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-diary-core/pkg/database"
)

// UserRepo stages and queries rows of the users table.
type UserRepo struct {
	*database.Repository[entity.User, *entity.User]
}

func NewUserRepo(scope *database.Scope) UserRepo {
	return UserRepo{database.NewRepository[entity.User](scope)}
}

// ByLogin returns the user with the given login, or nil.
func (r UserRepo) ByLogin(ctx context.Context, login string) (*entity.User, error) {
	return r.Query().Where(sq.Eq{"users.login": login}).First(ctx)
}

func (r UserRepo) ByID(ctx context.Context, id int64) (*entity.User, error) {
	return r.Query().Where(sq.Eq{"users.id": id}).First(ctx)
}

// RoleRepo stages and queries rows of the roles table.
type RoleRepo struct {
	*database.Repository[entity.Role, *entity.Role]
}

func NewRoleRepo(scope *database.Scope) RoleRepo {
	return RoleRepo{database.NewRepository[entity.Role](scope)}
}

func (r RoleRepo) ByID(ctx context.Context, id int64) (*entity.Role, error) {
	return r.Query().Where(sq.Eq{"roles.id": id}).First(ctx)
}

func (r RoleRepo) ByName(ctx context.Context, name string) (*entity.Role, error) {
	return r.Query().Where(sq.Eq{"roles.name": name}).First(ctx)
}

// OfUser resolves the roles linked to userID through user_roles.
func (r RoleRepo) OfUser(ctx context.Context, userID int64) ([]entity.Role, error) {
	return r.Query().
		Join("user_roles ON user_roles.role_id = roles.id").
		Where(sq.Eq{"user_roles.user_id": userID}).
		OrderBy("roles.id").
		All(ctx)
}

// UserRoleRepo stages and queries rows of the user_roles join table.
type UserRoleRepo struct {
	*database.Repository[entity.UserRole, *entity.UserRole]
}

func NewUserRoleRepo(scope *database.Scope) UserRoleRepo {
	return UserRoleRepo{database.NewRepository[entity.UserRole](scope)}
}

// Find returns the link for (userID, roleID), or nil.
func (r UserRoleRepo) Find(ctx context.Context, userID, roleID int64) (*entity.UserRole, error) {
	return r.Query().Where(sq.Eq{"user_roles.user_id": userID, "user_roles.role_id": roleID}).First(ctx)
}

func (r UserRoleRepo) CountFor(ctx context.Context, userID, roleID int64) (int64, error) {
	return r.Query().Where(sq.Eq{"user_roles.user_id": userID, "user_roles.role_id": roleID}).Count(ctx)
}

// HasRole reports whether roleID is among roles.
func HasRole(roles []entity.Role, roleID int64) bool {
	for _, r := range roles {
		if r.ID == roleID {
			return true
		}
	}
	return false
}

// RoleNames lists the names of roles in order.
func RoleNames(roles []entity.Role) []string {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	return names
}
