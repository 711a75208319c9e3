package device

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ErrTokenNotFound is returned when a refresh token was never issued.
var ErrTokenNotFound = errors.New("refresh token not found")

// RefreshToken is a stored refresh token.
type RefreshToken struct {
	Token     string
	DeviceID  string
	SessionID string
	ExpiresAt time.Time
	Revoked   bool
}

// Usable reports whether the token can still be exchanged at now.
func (t RefreshToken) Usable(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}

// Repository persists devices and their refresh tokens.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// UpsertDevice ensures a device record exists and records who last signed in on it.
func (r *Repository) UpsertDevice(ctx context.Context, deviceID, userID string) error {
	if deviceID == "" {
		return errors.New("device id required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (device_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (device_id) DO UPDATE SET user_id = EXCLUDED.user_id, last_seen = CURRENT_TIMESTAMP
	`, deviceID, userID)
	return err
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (r *Repository) SaveRefreshToken(ctx context.Context, t RefreshToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (token, device_id, session_id, expires_at)
		VALUES ($1, $2, $3, $4)
	`, t.Token, t.DeviceID, t.SessionID, t.ExpiresAt.UTC())
	return err
}

// LookupRefreshToken loads a stored refresh token.
func (r *Repository) LookupRefreshToken(ctx context.Context, token string) (RefreshToken, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT token, device_id, session_id, expires_at, revoked
		FROM refresh_tokens
		WHERE token = $1
	`, token)
	var t RefreshToken
	if err := row.Scan(&t.Token, &t.DeviceID, &t.SessionID, &t.ExpiresAt, &t.Revoked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RefreshToken{}, ErrTokenNotFound
		}
		return RefreshToken{}, err
	}
	return t, nil
}

// RevokeRefreshToken marks a token revoked.
func (r *Repository) RevokeRefreshToken(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE token = $1`, token)
	return err
}

// RevokeSession revokes every refresh token issued to a session.
func (r *Repository) RevokeSession(ctx context.Context, sessionID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE session_id = $1 AND revoked = FALSE`, sessionID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
