// Package role manages roles and the links between users and roles.
package role

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-diary-core/internal/result"
	"github.com/ovaphlow/pitchfork/service-diary-core/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-diary-core/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-diary-core/pkg/database"
)

type CreateRequest struct {
	Name string `json:"name"`
}

type UpdateRequest struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type UserRoleRequest struct {
	Login  string `json:"login"`
	RoleID int64  `json:"roleId"`
}

type SwapRequest struct {
	Login     string `json:"login"`
	OldRoleID int64  `json:"oldRoleId"`
	NewRoleID int64  `json:"newRoleId"`
}

// UserRoleView is returned by the user-role operations.
type UserRoleView struct {
	Login    string `json:"login"`
	RoleName string `json:"roleName"`
}

type Service struct {
	store  *database.Store
	logger *zap.SugaredLogger
}

func NewService(store *database.Store, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{store: store, logger: logger}
}

func (s *Service) CreateRole(ctx context.Context, req CreateRequest) (entity.Role, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return entity.Role{}, result.ErrInvalidClientRequest
	}
	uow := userrepo.NewUnitOfWork(s.store)
	existing, err := uow.Roles.ByName(ctx, name)
	if err != nil {
		return entity.Role{}, result.Internal(err)
	}
	if existing != nil {
		return entity.Role{}, result.ErrRoleAlreadyExists
	}
	r := uow.Roles.Create(&entity.Role{Name: name})
	if _, err := uow.PersistAll(ctx); err != nil {
		return entity.Role{}, result.Internal(err)
	}
	s.logger.Infow("role created", "id", r.ID, "name", r.Name)
	return *r, nil
}

func (s *Service) UpdateRole(ctx context.Context, req UpdateRequest) (entity.Role, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return entity.Role{}, result.ErrInvalidClientRequest
	}
	uow := userrepo.NewUnitOfWork(s.store)
	r, err := uow.Roles.ByID(ctx, req.ID)
	if err != nil {
		return entity.Role{}, result.Internal(err)
	}
	if r == nil {
		return entity.Role{}, result.ErrRoleDoesNotExists
	}
	r.Name = name
	uow.Roles.Update(r)
	if _, err := uow.PersistAll(ctx); err != nil {
		return entity.Role{}, result.Internal(err)
	}
	s.logger.Infow("role renamed", "id", r.ID, "name", r.Name)
	return *r, nil
}

// RemoveRole deletes the role; its user links go with it.
func (s *Service) RemoveRole(ctx context.Context, id int64) (entity.Role, error) {
	uow := userrepo.NewUnitOfWork(s.store)
	r, err := uow.Roles.ByID(ctx, id)
	if err != nil {
		return entity.Role{}, result.Internal(err)
	}
	if r == nil {
		return entity.Role{}, result.ErrRoleDoesNotExists
	}
	uow.Roles.Remove(r)
	if _, err := uow.PersistAll(ctx); err != nil {
		return entity.Role{}, result.Internal(err)
	}
	s.logger.Infow("role removed", "id", r.ID, "name", r.Name)
	return *r, nil
}

// userWithRoles resolves the user by login together with its roles.
func userWithRoles(ctx context.Context, uow *userrepo.UnitOfWork, login string) (*entity.User, []entity.Role, error) {
	u, err := uow.Users.ByLogin(ctx, strings.TrimSpace(login))
	if err != nil {
		return nil, nil, result.Internal(err)
	}
	if u == nil {
		return nil, nil, result.ErrUserNotFound
	}
	roles, err := uow.Roles.OfUser(ctx, u.ID)
	if err != nil {
		return nil, nil, result.Internal(err)
	}
	return u, roles, nil
}

func (s *Service) AddRoleForUser(ctx context.Context, req UserRoleRequest) (UserRoleView, error) {
	uow := userrepo.NewUnitOfWork(s.store)
	u, roles, err := userWithRoles(ctx, uow, req.Login)
	if err != nil {
		return UserRoleView{}, err
	}
	if userrepo.HasRole(roles, req.RoleID) {
		return UserRoleView{}, result.ErrUserAlreadyHasThisRole
	}
	r, err := uow.Roles.ByID(ctx, req.RoleID)
	if err != nil {
		return UserRoleView{}, result.Internal(err)
	}
	if r == nil {
		return UserRoleView{}, result.ErrRoleDoesNotExists
	}
	uow.UserRoles.Create(&entity.UserRole{UserID: u.ID, RoleID: r.ID})
	if _, err := uow.PersistAll(ctx); err != nil {
		return UserRoleView{}, result.Internal(err)
	}
	s.logger.Infow("role granted", "login", u.Login, "role", r.Name)
	return UserRoleView{Login: u.Login, RoleName: r.Name}, nil
}

func (s *Service) RemoveRoleForUser(ctx context.Context, req UserRoleRequest) (UserRoleView, error) {
	uow := userrepo.NewUnitOfWork(s.store)
	u, roles, err := userWithRoles(ctx, uow, req.Login)
	if err != nil {
		return UserRoleView{}, err
	}
	var held *entity.Role
	for i := range roles {
		if roles[i].ID == req.RoleID {
			held = &roles[i]
			break
		}
	}
	if held == nil {
		return UserRoleView{}, result.ErrRoleDoesNotExists
	}
	link, err := uow.UserRoles.Find(ctx, u.ID, held.ID)
	if err != nil {
		return UserRoleView{}, result.Internal(err)
	}
	if link == nil {
		return UserRoleView{}, result.ErrRoleDoesNotExists
	}
	uow.UserRoles.Remove(link)
	if _, err := uow.PersistAll(ctx); err != nil {
		return UserRoleView{}, result.Internal(err)
	}
	s.logger.Infow("role revoked", "login", u.Login, "role", held.Name)
	return UserRoleView{Login: u.Login, RoleName: held.Name}, nil
}

// UpdateRoleForUser swaps the old role of a user for the new one. The
// removal and the insertion commit together or not at all.
func (s *Service) UpdateRoleForUser(ctx context.Context, req SwapRequest) (UserRoleView, error) {
	uow := userrepo.NewUnitOfWork(s.store)
	u, roles, err := userWithRoles(ctx, uow, req.Login)
	if err != nil {
		return UserRoleView{}, err
	}
	oldRole, err := uow.Roles.ByID(ctx, req.OldRoleID)
	if err != nil {
		return UserRoleView{}, result.Internal(err)
	}
	newRole, err := uow.Roles.ByID(ctx, req.NewRoleID)
	if err != nil {
		return UserRoleView{}, result.Internal(err)
	}
	if oldRole == nil || newRole == nil {
		return UserRoleView{}, result.ErrRoleDoesNotExists
	}
	if userrepo.HasRole(roles, newRole.ID) {
		return UserRoleView{}, result.ErrUserAlreadyHasThisRole
	}

	err = uow.WithinTransaction(ctx, func(ctx context.Context) error {
		link, err := uow.UserRoles.Find(ctx, u.ID, oldRole.ID)
		if err != nil {
			return err
		}
		if link == nil {
			return result.ErrRoleDoesNotExists
		}
		uow.UserRoles.Remove(link)
		if _, err := uow.PersistAll(ctx); err != nil {
			return err
		}
		uow.UserRoles.Create(&entity.UserRole{UserID: u.ID, RoleID: newRole.ID})
		_, err = uow.PersistAll(ctx)
		return err
	})
	if err != nil {
		s.logger.Warnw("role swap failed", "login", u.Login, "old", oldRole.Name, "new", newRole.Name, "err", err)
		return UserRoleView{}, result.Internal(err)
	}
	s.logger.Infow("role swapped", "login", u.Login, "old", oldRole.Name, "new", newRole.Name)
	return UserRoleView{Login: u.Login, RoleName: newRole.Name}, nil
}
