package oidc

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	oidcrepo "github.com/ovaphlow/pitchfork/service-diary-core/internal/oidc/repo"
	"github.com/ovaphlow/pitchfork/service-diary-core/internal/result"
	"github.com/ovaphlow/pitchfork/service-diary-core/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-diary-core/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-diary-core/pkg/database"
	"github.com/ovaphlow/pitchfork/service-diary-core/pkg/utilities"
)

var ErrInvalidToken = errors.New("oidc: invalid token")

type Config struct {
	Issuer     string
	Audience   string
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// ConfigFromEnv reads token settings. Without JWT_SECRET tokens are signed
// with an RSA key generated at startup.
func ConfigFromEnv() Config {
	cfg := Config{
		Issuer:     os.Getenv("JWT_ISSUER"),
		Audience:   os.Getenv("JWT_AUDIENCE"),
		Secret:     os.Getenv("JWT_SECRET"),
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "service-diary-core"
	}
	if d, err := time.ParseDuration(os.Getenv("JWT_ACCESS_TTL")); err == nil && d > 0 {
		cfg.AccessTTL = d
	}
	if d, err := time.ParseDuration(os.Getenv("JWT_REFRESH_TTL")); err == nil && d > 0 {
		cfg.RefreshTTL = d
	}
	return cfg
}

// Issuer signs access tokens and mints opaque refresh tokens.
type Issuer struct {
	cfg       Config
	clock     clockwork.Clock
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
	kid       string
}

func NewIssuer(cfg Config, clock clockwork.Clock) (*Issuer, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	iss := &Issuer{cfg: cfg, clock: clock}
	if cfg.Secret != "" {
		iss.method = jwt.SigningMethodHS256
		iss.signKey = []byte(cfg.Secret)
		iss.verifyKey = []byte(cfg.Secret)
		return iss, nil
	}

	k, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	pub, err := x509.MarshalPKIXPublicKey(&k.PublicKey)
	if err != nil {
		return nil, err
	}
	h := sha256.Sum256(pub)
	iss.method = jwt.SigningMethodRS256
	iss.signKey = k
	iss.verifyKey = &k.PublicKey
	iss.kid = base64.RawURLEncoding.EncodeToString(h[:8])
	return iss, nil
}

func (i *Issuer) RefreshTTL() time.Duration { return i.cfg.RefreshTTL }

// IssueAccessToken signs a token carrying claims. The name claim becomes
// the subject and each role claim is listed under "role".
func (i *Issuer) IssueAccessToken(claims []Claim) (string, error) {
	now := i.clock.Now()
	ac := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.cfg.Issuer,
			ID:        utilities.NewKSUID(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.cfg.AccessTTL)),
		},
	}
	if i.cfg.Audience != "" {
		ac.Audience = jwt.ClaimStrings{i.cfg.Audience}
	}
	for _, c := range claims {
		switch c.Type {
		case ClaimTypeName:
			ac.Subject = c.Value
		case ClaimTypeRole:
			ac.Roles = append(ac.Roles, c.Value)
		}
	}
	tok := jwt.NewWithClaims(i.method, ac)
	if i.kid != "" {
		tok.Header["kid"] = i.kid
	}
	return tok.SignedString(i.signKey)
}

// IssueRefreshToken returns 32 random bytes, base64url encoded. Its expiry
// is tracked by the caller.
func (i *Issuer) IssueRefreshToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Parse verifies the signature of token. With validateLifetime false the
// expiry, issuer and audience are not checked, which lets an expired
// access token be exchanged for a new one.
func (i *Issuer) Parse(token string, validateLifetime bool) (*AccessClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{i.method.Alg()}),
		jwt.WithTimeFunc(i.clock.Now),
	}
	if validateLifetime {
		opts = append(opts, jwt.WithExpirationRequired(), jwt.WithIssuer(i.cfg.Issuer))
		if i.cfg.Audience != "" {
			opts = append(opts, jwt.WithAudience(i.cfg.Audience))
		}
	} else {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}
	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return i.verifyKey, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// ClaimsFor builds the claim set of a user: one name claim plus one role
// claim per role.
func ClaimsFor(login string, roles []entity.Role) []Claim {
	claims := make([]Claim, 0, len(roles)+1)
	for _, r := range roles {
		claims = append(claims, Claim{Type: ClaimTypeRole, Value: r.Name})
	}
	return append(claims, Claim{Type: ClaimTypeName, Value: login})
}

// TokenService issues token pairs and keeps the refresh token row of each
// user current.
type TokenService struct {
	store  *database.Store
	issuer *Issuer
	logger *zap.SugaredLogger
}

func NewTokenService(store *database.Store, issuer *Issuer, logger *zap.SugaredLogger) *TokenService {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &TokenService{store: store, issuer: issuer, logger: logger}
}

func (s *TokenService) Issuer() *Issuer { return s.issuer }

// Grant issues a new pair for u and overwrites its refresh token row with
// expiry now + refresh TTL. It persists through scope.
func (s *TokenService) Grant(ctx context.Context, scope *database.Scope, u *entity.User) (TokenPair, error) {
	roles, err := userrepo.NewRoleRepo(scope).OfUser(ctx, u.ID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("load roles: %w", err)
	}
	access, err := s.issuer.IssueAccessToken(ClaimsFor(u.Login, roles))
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := s.issuer.IssueRefreshToken()
	if err != nil {
		return TokenPair{}, fmt.Errorf("refresh token: %w", err)
	}
	expiry := s.store.Clock().Now().UTC().Add(s.issuer.RefreshTTL())
	if _, err := oidcrepo.NewRefreshRepo(scope).Save(ctx, u.ID, refresh, expiry); err != nil {
		return TokenPair{}, fmt.Errorf("save refresh token: %w", err)
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh exchanges an access token, expired or not, and the current
// refresh token of its subject for a new pair.
func (s *TokenService) Refresh(ctx context.Context, req TokenPair) (TokenPair, error) {
	claims, err := s.issuer.Parse(req.AccessToken, false)
	if err != nil || strings.TrimSpace(claims.Subject) == "" {
		s.logger.Debugw("refresh rejected", "reason", "bad access token", "err", err)
		return TokenPair{}, result.ErrInvalidClientRequest
	}

	scope := s.store.NewScope()
	u, err := userrepo.NewUserRepo(scope).ByLogin(ctx, claims.Subject)
	if err != nil {
		return TokenPair{}, result.Internal(err)
	}
	if u == nil {
		return TokenPair{}, result.ErrUserNotFound
	}

	row, err := oidcrepo.NewRefreshRepo(scope).ByUserID(ctx, u.ID)
	if err != nil {
		return TokenPair{}, result.Internal(err)
	}
	now := s.store.Clock().Now()
	if row == nil ||
		subtle.ConstantTimeCompare([]byte(row.RefreshToken), []byte(req.RefreshToken)) != 1 ||
		row.Expired(now) {
		s.logger.Debugw("refresh rejected", "reason", "refresh token mismatch or expired", "login", u.Login)
		return TokenPair{}, result.ErrInvalidClientRequest
	}

	pair, err := s.Grant(ctx, scope, u)
	if err != nil {
		return TokenPair{}, result.Internal(err)
	}
	s.logger.Infow("tokens refreshed", "login", u.Login)
	return pair, nil
}
