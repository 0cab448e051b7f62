package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"autoposter/internal/domain"
)

type AccountStore struct {
	db *sqlx.DB
}

func NewAccountStore(db *sqlx.DB) *AccountStore {
	return &AccountStore{db: db}
}

const accountColumns = `
	id, user_id, platform, platform_user_id, username, access_token,
	refresh_token, token_expires_at, is_active, created_at`

func (s *AccountStore) GetByID(ctx context.Context, id int64) (*domain.SocialAccount, error) {
	row := s.db.QueryRowxContext(ctx,
		`SELECT `+accountColumns+` FROM social_accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// FindActive returns the user's active account on a platform, or nil
// when none is connected.
func (s *AccountStore) FindActive(ctx context.Context, userID int64, platform domain.Platform) (*domain.SocialAccount, error) {
	row := s.db.QueryRowxContext(ctx, `
		SELECT `+accountColumns+` FROM social_accounts
		WHERE user_id = $1 AND platform = $2 AND is_active = TRUE
		ORDER BY id LIMIT 1`,
		userID, platform)

	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return account, err
}

func (s *AccountStore) UpdateToken(ctx context.Context, accountID int64, accessToken, refreshToken string, expiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE social_accounts SET
			access_token = $1,
			refresh_token = $2,
			token_expires_at = $3
		WHERE id = $4`,
		accessToken, refreshToken, expiresAt, accountID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("account %d not found", accountID)
	}
	return nil
}

func (s *AccountStore) MarkInactive(ctx context.Context, accountID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE social_accounts SET is_active = FALSE WHERE id = $1", accountID)
	return err
}

// ListExpiring returns active accounts whose token expires before the
// cutoff, for the proactive refresh job.
func (s *AccountStore) ListExpiring(ctx context.Context, before time.Time) ([]*domain.SocialAccount, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT `+accountColumns+` FROM social_accounts
		WHERE is_active = TRUE
		  AND token_expires_at IS NOT NULL
		  AND token_expires_at < $1
		ORDER BY token_expires_at`,
		before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*domain.SocialAccount
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

func scanAccount(row rowScanner) (*domain.SocialAccount, error) {
	var a domain.SocialAccount
	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.Platform,
		&a.PlatformUserID,
		&a.Username,
		&a.AccessToken,
		&a.RefreshToken,
		&a.TokenExpiresAt,
		&a.IsActive,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
