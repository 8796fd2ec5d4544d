package user

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-diary-core/internal/oidc"
	"github.com/ovaphlow/pitchfork/service-diary-core/internal/result"
	"github.com/ovaphlow/pitchfork/service-diary-core/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-diary-core/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-diary-core/pkg/database"
)

// MaxLoginLength matches the users.login column.
const MaxLoginLength = 100

type RegisterRequest struct {
	Login           string `json:"login"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

type LoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// AuthService registers users and logs them in. Each call works on its own
// store scope.
type AuthService struct {
	store  *database.Store
	hasher PasswordHasher
	tokens *oidc.TokenService
	logger *zap.SugaredLogger
}

func NewAuthService(store *database.Store, hasher PasswordHasher, tokens *oidc.TokenService, logger *zap.SugaredLogger) *AuthService {
	if hasher == nil {
		hasher = BcryptHasher{Cost: 12}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &AuthService{store: store, hasher: hasher, tokens: tokens, logger: logger}
}

// Register creates the user and links it to the default role in one
// transaction. Any failure inside the transaction rolls both writes back.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (entity.View, error) {
	if req.Password != req.PasswordConfirm {
		return entity.View{}, result.ErrPasswordsNotMatch
	}
	login := strings.TrimSpace(req.Login)
	if login == "" || len(login) > MaxLoginLength || req.Password == "" {
		return entity.View{}, result.ErrInvalidClientRequest
	}

	uow := userrepo.NewUnitOfWork(s.store)
	existing, err := uow.Users.ByLogin(ctx, login)
	if err != nil {
		return entity.View{}, result.Internal(err)
	}
	if existing != nil {
		return entity.View{}, result.ErrUserAlreadyExists
	}

	digest, err := s.hasher.Hash(req.Password)
	if err != nil {
		return entity.View{}, result.Internal(err)
	}

	var u *entity.User
	err = uow.WithinTransaction(ctx, func(ctx context.Context) error {
		u = uow.Users.Create(&entity.User{Login: login, Password: digest})
		if _, err := uow.PersistAll(ctx); err != nil {
			// lost the race against a concurrent registration
			if database.IsUniqueViolation(err) {
				return result.ErrUserAlreadyExists
			}
			return err
		}

		role, err := uow.Roles.ByName(ctx, entity.RoleUser)
		if err != nil {
			return err
		}
		if role == nil {
			return result.ErrRoleDoesNotExists
		}
		uow.UserRoles.Create(&entity.UserRole{UserID: u.ID, RoleID: role.ID})
		_, err = uow.PersistAll(ctx)
		return err
	})
	if err != nil {
		s.logger.Warnw("register failed", "login", login, "err", err)
		return entity.View{}, result.Internal(err)
	}

	s.logger.Infow("user registered", "login", u.Login, "id", u.ID)
	return u.View(), nil
}

// Login verifies the password and issues a token pair. The refresh token
// row of the user is created on first login and overwritten afterwards.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (oidc.TokenPair, error) {
	scope := s.store.NewScope()
	u, err := userrepo.NewUserRepo(scope).ByLogin(ctx, strings.TrimSpace(req.Login))
	if err != nil {
		return oidc.TokenPair{}, result.Internal(err)
	}
	if u == nil {
		return oidc.TokenPair{}, result.ErrUserNotFound
	}
	if !s.hasher.Verify(u.Password, req.Password) {
		s.logger.Debugw("login rejected", "login", u.Login)
		return oidc.TokenPair{}, result.ErrPasswordIsWrong
	}

	pair, err := s.tokens.Grant(ctx, scope, u)
	if err != nil {
		s.logger.Warnw("login failed", "login", u.Login, "err", err)
		return oidc.TokenPair{}, result.Internal(err)
	}
	s.logger.Infow("user logged in", "login", u.Login)
	return pair, nil
}
