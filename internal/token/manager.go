package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"autoposter/internal/config"
	"autoposter/internal/domain"
)

// AccountStore is the persistence surface the token manager needs.
type AccountStore interface {
	UpdateToken(ctx context.Context, accountID int64, accessToken, refreshToken string, expiresAt time.Time) error
	MarkInactive(ctx context.Context, accountID int64) error
	ListExpiring(ctx context.Context, before time.Time) ([]*domain.SocialAccount, error)
}

// Manager refreshes OAuth access tokens before they expire. A token
// within the refresh margin of expiry is refreshed before being handed
// out, so a publish call never starts with a token about to lapse.
// Refreshes are serialized per account; a revoked refresh token marks
// the account inactive and surfaces domain.ErrAccountInactive.
type Manager struct {
	store  AccountStore
	cfg    config.TokenConfig
	logger *slog.Logger

	mu    sync.Mutex
	locks map[int64]*sync.Mutex

	now func() time.Time
}

func NewManager(store AccountStore, cfg config.TokenConfig, logger *slog.Logger) *Manager {
	return &Manager{
		store:  store,
		cfg:    cfg,
		logger: logger.With("component", "token_manager"),
		locks:  make(map[int64]*sync.Mutex),
		now:    time.Now,
	}
}

// ValidToken returns an access token good for at least the refresh
// margin, refreshing it first when necessary. Tokens without a recorded
// expiry are treated as non-expiring. Concurrent calls for the same
// account are serialized, so a burst of workers triggers one refresh.
func (m *Manager) ValidToken(ctx context.Context, account *domain.SocialAccount) (string, error) {
	lock := m.accountLock(account.ID)
	lock.Lock()
	defer lock.Unlock()

	if !account.IsActive {
		return "", domain.ErrAccountInactive
	}
	if account.TokenExpiresAt == nil || account.TokenExpiresAt.After(m.now().Add(m.cfg.RefreshMargin)) {
		return account.AccessToken, nil
	}
	if err := m.refreshLocked(ctx, account); err != nil {
		return "", err
	}
	return account.AccessToken, nil
}

// Refresh exchanges the account's refresh token for a new access token
// and persists it, updating the account in place.
func (m *Manager) Refresh(ctx context.Context, account *domain.SocialAccount) error {
	lock := m.accountLock(account.ID)
	lock.Lock()
	defer lock.Unlock()

	return m.refreshLocked(ctx, account)
}

func (m *Manager) refreshLocked(ctx context.Context, account *domain.SocialAccount) error {
	provider, ok := m.cfg.Providers[string(account.Platform)]
	if !ok {
		return fmt.Errorf("no oauth provider configured for platform %q", account.Platform)
	}

	conf := &oauth2.Config{
		ClientID:     provider.ClientID,
		ClientSecret: provider.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: provider.TokenURL},
	}

	refreshCtx := ctx
	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		refreshCtx, cancel = context.WithTimeout(ctx, m.cfg.Timeout)
		defer cancel()
	}

	// an expired Token forces TokenSource to hit the refresh endpoint
	src := conf.TokenSource(refreshCtx, &oauth2.Token{
		RefreshToken: account.RefreshToken,
		Expiry:       time.Unix(1, 0),
	})

	tok, err := src.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil &&
			retrieveErr.Response.StatusCode >= 400 && retrieveErr.Response.StatusCode < 500 {
			// refresh token revoked or client misconfigured: the account
			// cannot post until the user reconnects it
			m.logger.Warn("refresh token rejected, marking account inactive",
				"account_id", account.ID,
				"platform", account.Platform,
				"status", retrieveErr.Response.StatusCode,
			)
			if markErr := m.store.MarkInactive(ctx, account.ID); markErr != nil {
				m.logger.Error("mark account inactive failed", "account_id", account.ID, "error", markErr)
			}
			account.IsActive = false
			return domain.ErrAccountInactive
		}
		return fmt.Errorf("refresh token for account %d: %w", account.ID, err)
	}

	refreshToken := tok.RefreshToken
	if refreshToken == "" {
		// providers that do not rotate refresh tokens omit the field
		refreshToken = account.RefreshToken
	}

	if err := m.store.UpdateToken(ctx, account.ID, tok.AccessToken, refreshToken, tok.Expiry); err != nil {
		return fmt.Errorf("persist refreshed token for account %d: %w", account.ID, err)
	}

	account.AccessToken = tok.AccessToken
	account.RefreshToken = refreshToken
	expiry := tok.Expiry
	account.TokenExpiresAt = &expiry

	m.logger.Info("access token refreshed",
		"account_id", account.ID,
		"platform", account.Platform,
		"expires_at", tok.Expiry,
	)
	return nil
}

func (m *Manager) accountLock(accountID int64) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[accountID] = lock
	}
	return lock
}
