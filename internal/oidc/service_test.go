package oidc

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-diary-core/internal/result"
	"github.com/ovaphlow/pitchfork/service-diary-core/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-diary-core/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-diary-core/pkg/database"
	"github.com/ovaphlow/pitchfork/service-diary-core/pkg/database/dbtest"
)

func testConfig() Config {
	return Config{Issuer: "diary", Audience: "diary-api", Secret: "s3cret", AccessTTL: 15 * time.Minute, RefreshTTL: 7 * 24 * time.Hour}
}

func TestIssuer(t *testing.T) {
	clock := clockwork.NewFakeClockAt(dbtest.Epoch)
	iss, err := NewIssuer(testConfig(), clock)
	require.NoError(t, err)

	t.Run("Should_carry_name_and_role_claims", func(t *testing.T) {
		tok, err := iss.IssueAccessToken([]Claim{
			{Type: ClaimTypeRole, Value: "User"},
			{Type: ClaimTypeRole, Value: "Admin"},
			{Type: ClaimTypeName, Value: "alice"},
		})
		require.NoError(t, err)

		claims, err := iss.Parse(tok, true)
		require.NoError(t, err)
		assert.Equal(t, "alice", claims.Subject)
		assert.Equal(t, []string{"User", "Admin"}, claims.Roles)
		assert.Equal(t, "diary", claims.Issuer)
		assert.True(t, claims.HasAnyRole("Moderator", "Admin"))
		assert.False(t, claims.HasAnyRole("Moderator"))
		require.NotNil(t, claims.ExpiresAt)
		assert.True(t, dbtest.Epoch.Add(15*time.Minute).Equal(claims.ExpiresAt.Time))
	})

	t.Run("Should_reject_expired_token_only_when_validating_lifetime", func(t *testing.T) {
		c := clockwork.NewFakeClockAt(dbtest.Epoch)
		iss, err := NewIssuer(testConfig(), c)
		require.NoError(t, err)
		tok, err := iss.IssueAccessToken(ClaimsFor("bob", nil))
		require.NoError(t, err)

		c.Advance(time.Hour)
		_, err = iss.Parse(tok, true)
		assert.ErrorIs(t, err, ErrInvalidToken)

		claims, err := iss.Parse(tok, false)
		require.NoError(t, err)
		assert.Equal(t, "bob", claims.Subject)
	})

	t.Run("Should_reject_foreign_signature", func(t *testing.T) {
		cfg := testConfig()
		cfg.Secret = "other"
		other, err := NewIssuer(cfg, clock)
		require.NoError(t, err)
		tok, err := other.IssueAccessToken(ClaimsFor("mallory", nil))
		require.NoError(t, err)

		_, err = iss.Parse(tok, false)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("Should_sign_with_generated_rsa_key_without_secret", func(t *testing.T) {
		cfg := testConfig()
		cfg.Secret = ""
		rsaIss, err := NewIssuer(cfg, clock)
		require.NoError(t, err)
		tok, err := rsaIss.IssueAccessToken(ClaimsFor("carol", nil))
		require.NoError(t, err)

		claims, err := rsaIss.Parse(tok, true)
		require.NoError(t, err)
		assert.Equal(t, "carol", claims.Subject)
		_, err = iss.Parse(tok, false)
		assert.Error(t, err)
	})

	t.Run("Should_mint_distinct_refresh_tokens", func(t *testing.T) {
		a, err := iss.IssueRefreshToken()
		require.NoError(t, err)
		b, err := iss.IssueRefreshToken()
		require.NoError(t, err)
		assert.Len(t, a, 43)
		assert.NotEqual(t, a, b)
	})
}

type refreshFixture struct {
	svc   *TokenService
	store *database.Store
	clock *clockwork.FakeClock
	user  *entity.User
}

func newRefreshFixture(t *testing.T) refreshFixture {
	t.Helper()
	store, clock := dbtest.NewStore(t)
	iss, err := NewIssuer(testConfig(), clock)
	require.NoError(t, err)

	uow := userrepo.NewUnitOfWork(store)
	u := uow.Users.Create(&entity.User{Login: "alice", Password: "digest"})
	uow.UserRoles.Create(&entity.UserRole{UserID: u.ID, RoleID: 1})
	_, err = uow.PersistAll(context.Background())
	require.NoError(t, err)

	return refreshFixture{svc: NewTokenService(store, iss, nil), store: store, clock: clock, user: u}
}

func (f refreshFixture) grant(t *testing.T) TokenPair {
	t.Helper()
	pair, err := f.svc.Grant(context.Background(), f.store.NewScope(), f.user)
	require.NoError(t, err)
	return pair
}

func TestTokenService_Refresh(t *testing.T) {
	ctx := context.Background()

	t.Run("Should_rotate_pair_in_place", func(t *testing.T) {
		f := newRefreshFixture(t)
		first := f.grant(t)

		f.clock.Advance(time.Hour)
		next, err := f.svc.Refresh(ctx, first)
		require.NoError(t, err)
		assert.NotEqual(t, first.RefreshToken, next.RefreshToken)

		assert.Equal(t, 1, dbtest.Count(t, f.store.DB(), "user_tokens", "user_id = ?", f.user.ID))
		assert.Equal(t, 1, dbtest.Count(t, f.store.DB(), "user_tokens", "refresh_token = ?", next.RefreshToken))

		_, err = f.svc.Refresh(ctx, first)
		assert.ErrorIs(t, err, result.ErrInvalidClientRequest, "old refresh token is spent")
	})

	t.Run("Should_reject_mismatched_refresh_token", func(t *testing.T) {
		f := newRefreshFixture(t)
		pair := f.grant(t)
		pair.RefreshToken = "not-the-one"

		_, err := f.svc.Refresh(ctx, pair)
		assert.ErrorIs(t, err, result.ErrInvalidClientRequest)
	})

	t.Run("Should_reject_expired_refresh_token", func(t *testing.T) {
		f := newRefreshFixture(t)
		pair := f.grant(t)

		f.clock.Advance(7*24*time.Hour + time.Second)
		_, err := f.svc.Refresh(ctx, pair)
		assert.ErrorIs(t, err, result.ErrInvalidClientRequest)
	})

	t.Run("Should_reject_garbage_access_token", func(t *testing.T) {
		f := newRefreshFixture(t)
		pair := f.grant(t)
		pair.AccessToken = "garbage"

		_, err := f.svc.Refresh(ctx, pair)
		assert.ErrorIs(t, err, result.ErrInvalidClientRequest)
	})

	t.Run("Should_reject_subject_without_user", func(t *testing.T) {
		f := newRefreshFixture(t)
		pair := f.grant(t)
		tok, err := f.svc.Issuer().IssueAccessToken(ClaimsFor("ghost", nil))
		require.NoError(t, err)
		pair.AccessToken = tok

		_, err = f.svc.Refresh(ctx, pair)
		assert.ErrorIs(t, err, result.ErrUserNotFound)
	})
}
