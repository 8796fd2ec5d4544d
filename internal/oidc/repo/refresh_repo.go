package repo

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/ovaphlow/pitchfork/service-diary-core/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-diary-core/pkg/database"
)

// RefreshRepo keeps the per-user refresh token row in user_tokens.
type RefreshRepo struct {
	*database.Repository[entity.UserToken, *entity.UserToken]
}

func NewRefreshRepo(scope *database.Scope) RefreshRepo {
	return RefreshRepo{database.NewRepository[entity.UserToken](scope)}
}

// ByUserID returns the token row of userID, or nil when the user never
// logged in.
func (r RefreshRepo) ByUserID(ctx context.Context, userID int64) (*entity.UserToken, error) {
	return r.Query().Where(sq.Eq{"user_tokens.user_id": userID}).First(ctx)
}

// Save stages the token for userID, overwriting the existing row when
// there is one, and persists it.
func (r RefreshRepo) Save(ctx context.Context, userID int64, token string, expiresAt time.Time) (*entity.UserToken, error) {
	row, err := r.save(ctx, userID, token, expiresAt)
	if err != nil && database.IsUniqueViolation(err) {
		// a concurrent first login inserted the row; overwrite it instead
		row, err = r.save(ctx, userID, token, expiresAt)
	}
	return row, err
}

func (r RefreshRepo) save(ctx context.Context, userID int64, token string, expiresAt time.Time) (*entity.UserToken, error) {
	row, err := r.ByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		row = r.Create(&entity.UserToken{
			UserID:                 userID,
			RefreshToken:           token,
			RefreshTokenExpiryTime: expiresAt,
		})
	} else {
		row.RefreshToken = token
		row.RefreshTokenExpiryTime = expiresAt
		r.Update(row)
	}
	if _, err := r.Persist(ctx); err != nil {
		return nil, err
	}
	return row, nil
}
