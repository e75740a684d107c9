package api

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/recondite-labs/scholarpipe/internal/research"
	"github.com/recondite-labs/scholarpipe/internal/store"
)

// Auth failure sentinels.
var (
	// ErrInvalidCredentials covers unknown accounts and wrong passwords; the
	// two are indistinguishable to callers.
	ErrInvalidCredentials = errors.New("api: invalid credentials")

	// ErrUnauthorized covers missing, unknown, and expired tokens.
	ErrUnauthorized = errors.New("api: unauthorized")
)

// tokenBytes is the entropy of each bearer and refresh token.
const tokenBytes = 32

// Auth issues and resolves opaque bearer tokens backed by the session table.
// Safe for concurrent use.
type Auth struct {
	store      store.Store
	tokenTTL   time.Duration
	refreshTTL time.Duration
}

// NewAuth constructs an Auth with the given token lifetimes.
func NewAuth(st store.Store, tokenTTL, refreshTTL time.Duration) *Auth {
	return &Auth{store: st, tokenTTL: tokenTTL, refreshTTL: refreshTTL}
}

// NewToken returns a fresh URL-safe random token.
func NewToken() string {
	var b [tokenBytes]byte
	// rand.Read on crypto/rand never fails on supported platforms.
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// HashPassword derives a bcrypt digest of password at the default cost.
// Passwords longer than 72 bytes are rejected by bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("api: hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches the stored bcrypt hash.
func VerifyPassword(stored, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
}

// Register creates an account. Email and username must be unique; the store
// reports collisions as [store.ErrDuplicate].
func (a *Auth) Register(ctx context.Context, email, username, password, fullName string) (*research.User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &research.User{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		FullName:     fullName,
		IsActive:     true,
	}
	if err := a.store.Users().Create(ctx, user); err != nil {
		return nil, fmt.Errorf("api: register: %w", err)
	}
	return user, nil
}

// Login verifies the credentials and opens a session. The email field also
// accepts a username.
func (a *Auth) Login(ctx context.Context, email, password, ip, userAgent string) (*research.UserSession, error) {
	user, err := a.store.Users().ByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		user, err = a.store.Users().ByUsername(ctx, email)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("api: login: %w", err)
	}
	if !user.IsActive || !VerifyPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	sess := &research.UserSession{
		UserID:       user.ID,
		Token:        NewToken(),
		RefreshToken: NewToken(),
		ExpiresAt:    time.Now().UTC().Add(a.tokenTTL),
		IPAddress:    ip,
		UserAgent:    userAgent,
	}
	if err := a.store.Sessions().Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("api: login: create session: %w", err)
	}
	if err := a.store.Users().RecordLogin(ctx, user.ID, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("api: login: record login: %w", err)
	}
	return sess, nil
}

// Refresh rotates a session: the old token pair is deleted and a fresh pair
// issued. Refresh tokens outlive access tokens by the configured margin, so a
// session whose access token expired can still be renewed until
// CreatedAt + refreshTTL.
func (a *Auth) Refresh(ctx context.Context, refreshToken string) (*research.UserSession, error) {
	old, err := a.store.Sessions().ByRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("api: refresh: %w", err)
	}
	if time.Now().UTC().After(old.CreatedAt.Add(a.refreshTTL)) {
		return nil, ErrUnauthorized
	}

	sess := &research.UserSession{
		UserID:       old.UserID,
		Token:        NewToken(),
		RefreshToken: NewToken(),
		ExpiresAt:    time.Now().UTC().Add(a.tokenTTL),
		IPAddress:    old.IPAddress,
		UserAgent:    old.UserAgent,
	}
	if err := a.store.Sessions().Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("api: refresh: create session: %w", err)
	}
	if err := a.store.Sessions().Delete(ctx, old.Token); err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("api: refresh: drop old session: %w", err)
	}
	return sess, nil
}

// Logout deletes the session behind token. Unknown tokens are a no-op.
func (a *Auth) Logout(ctx context.Context, token string) error {
	err := a.store.Sessions().Delete(ctx, token)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("api: logout: %w", err)
	}
	return nil
}

// Authenticate resolves a bearer token to its user. Expired and unknown
// tokens return [ErrUnauthorized].
func (a *Auth) Authenticate(ctx context.Context, token string) (*research.User, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	sess, err := a.store.Sessions().ByToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("api: authenticate: %w", err)
	}
	if sess.Expired(time.Now().UTC()) {
		return nil, ErrUnauthorized
	}
	user, err := a.store.Users().ByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("api: authenticate: %w", err)
	}
	if !user.IsActive {
		return nil, ErrUnauthorized
	}
	return user, nil
}

// userKey is the context key carrying the authenticated user.
type userKey struct{}

// userFrom returns the authenticated user stored by withAuth.
func userFrom(ctx context.Context) *research.User {
	u, _ := ctx.Value(userKey{}).(*research.User)
	return u
}

// bearerToken extracts the token from the Authorization header, falling back
// to the "token" query parameter for WebSocket clients that cannot set
// headers.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return tok
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// withAuth wraps next with bearer-token authentication, storing the resolved
// user in the request context.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.auth.Authenticate(r.Context(), bearerToken(r))
		if err != nil {
			if errors.Is(err, ErrUnauthorized) {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			storeError(w, err)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	}
}

// --- Auth handlers ---

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type userResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	FullName string `json:"full_name,omitempty"`
}

func toUserResponse(u *research.User) userResponse {
	return userResponse{
		ID:       u.ID.String(),
		Email:    u.Email,
		Username: u.Username,
		FullName: u.FullName,
	}
}

// minPasswordLen rejects trivially weak passwords at the API edge;
// maxPasswordLen is bcrypt's 72-byte input limit.
const (
	minPasswordLen = 8
	maxPasswordLen = 72
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Email == "" || req.Username == "" {
		writeError(w, http.StatusBadRequest, "email and username are required")
		return
	}
	if len(req.Password) < minPasswordLen {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}
	if len(req.Password) > maxPasswordLen {
		writeError(w, http.StatusBadRequest, "password must be at most 72 bytes")
		return
	}

	user, err := s.auth.Register(r.Context(), req.Email, req.Username, req.Password, req.FullName)
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token        string    `json:"token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	sess, err := s.auth.Login(r.Context(), req.Email, req.Password, r.RemoteAddr, r.UserAgent())
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		Token:        sess.Token,
		RefreshToken: sess.RefreshToken,
		ExpiresAt:    sess.ExpiresAt,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	sess, err := s.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		Token:        sess.Token,
		RefreshToken: sess.RefreshToken,
		ExpiresAt:    sess.ExpiresAt,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(r.Context(), bearerToken(r)); err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toUserResponse(userFrom(r.Context())))
}
