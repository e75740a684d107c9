package postgres

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/google/uuid"

	"github.com/recondite-labs/scholarpipe/internal/research"
	"github.com/recondite-labs/scholarpipe/internal/store"
)

var (
	_ store.UserRepo    = (*userRepo)(nil)
	_ store.SessionRepo = (*sessionRepo)(nil)
)

type userRepo struct {
	db querier
}

const userColumns = `id, email, username, password_hash, full_name, is_active,
       is_verified, preferences, created_at, updated_at, last_login`

func (r *userRepo) Create(ctx context.Context, u *research.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	prefs, err := marshalJSON("users: create", u.Preferences)
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO users
		    (id, email, username, password_hash, full_name, is_active, is_verified, preferences, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = r.db.Exec(ctx, q,
		u.ID, u.Email, u.Username, u.PasswordHash, u.FullName,
		u.IsActive, u.IsVerified, prefs, u.CreatedAt,
	)
	if err != nil {
		return wrapErr("users: create", err)
	}
	return nil
}

func (r *userRepo) ByID(ctx context.Context, id uuid.UUID) (*research.User, error) {
	return r.one(ctx, "users: by id", "id = $1", id)
}

func (r *userRepo) ByEmail(ctx context.Context, email string) (*research.User, error) {
	return r.one(ctx, "users: by email", "email = $1", email)
}

func (r *userRepo) ByUsername(ctx context.Context, username string) (*research.User, error) {
	return r.one(ctx, "users: by username", "username = $1", username)
}

func (r *userRepo) one(ctx context.Context, op, where string, arg any) (*research.User, error) {
	q := fmt.Sprintf("SELECT %s FROM users WHERE %s", userColumns, where)
	row := r.db.QueryRow(ctx, q, arg)

	var (
		u     research.User
		prefs []byte
	)
	err := row.Scan(
		&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.FullName,
		&u.IsActive, &u.IsVerified, &prefs, &u.CreatedAt, &u.UpdatedAt, &u.LastLogin,
	)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	if err := unmarshalJSON(op, prefs, &u.Preferences); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) RecordLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	const q = `UPDATE users SET last_login = $2, updated_at = $2 WHERE id = $1`
	tag, err := r.db.Exec(ctx, q, id, at)
	if err != nil {
		return wrapErr("users: record login", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("users: record login: %w", store.ErrNotFound)
	}
	return nil
}

type sessionRepo struct {
	db querier
}

const sessionColumns = `id, user_id, token, refresh_token, expires_at, created_at, ip_address, user_agent`

func (r *sessionRepo) Create(ctx context.Context, s *research.UserSession) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}

	var ip *netip.Addr
	if s.IPAddress != "" {
		if addr, err := netip.ParseAddr(s.IPAddress); err == nil {
			ip = &addr
		}
	}

	const q = `
		INSERT INTO user_sessions
		    (id, user_id, token, refresh_token, expires_at, created_at, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.Exec(ctx, q,
		s.ID, s.UserID, s.Token, nullString(s.RefreshToken),
		s.ExpiresAt, s.CreatedAt, ip, s.UserAgent,
	)
	if err != nil {
		return wrapErr("sessions: create", err)
	}
	return nil
}

func (r *sessionRepo) ByToken(ctx context.Context, token string) (*research.UserSession, error) {
	return r.one(ctx, "sessions: by token", "token = $1", token)
}

func (r *sessionRepo) ByRefreshToken(ctx context.Context, token string) (*research.UserSession, error) {
	return r.one(ctx, "sessions: by refresh token", "refresh_token = $1", token)
}

func (r *sessionRepo) one(ctx context.Context, op, where string, arg any) (*research.UserSession, error) {
	q := fmt.Sprintf("SELECT %s FROM user_sessions WHERE %s", sessionColumns, where)

	var (
		s       research.UserSession
		refresh *string
		ip      *netip.Addr
	)
	err := r.db.QueryRow(ctx, q, arg).Scan(
		&s.ID, &s.UserID, &s.Token, &refresh, &s.ExpiresAt, &s.CreatedAt, &ip, &s.UserAgent,
	)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	if refresh != nil {
		s.RefreshToken = *refresh
	}
	if ip != nil {
		s.IPAddress = ip.String()
	}
	return &s, nil
}

func (r *sessionRepo) Delete(ctx context.Context, token string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM user_sessions WHERE token = $1`, token)
	if err != nil {
		return wrapErr("sessions: delete", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sessions: delete: %w", store.ErrNotFound)
	}
	return nil
}

func (r *sessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM user_sessions WHERE expires_at < $1`, now)
	if err != nil {
		return 0, wrapErr("sessions: delete expired", err)
	}
	return int(tag.RowsAffected()), nil
}
