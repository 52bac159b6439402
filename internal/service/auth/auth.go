package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/schoolhub/internal/apperrors"
	"github.com/nkiryanov/schoolhub/internal/logger"
	"github.com/nkiryanov/schoolhub/internal/metrics"
	"github.com/nkiryanov/schoolhub/internal/models"
	"github.com/nkiryanov/schoolhub/internal/repository"
	"github.com/nkiryanov/schoolhub/internal/service/auth/refresh"
	"github.com/nkiryanov/schoolhub/internal/service/auth/tokenmanager"
)

const (
	defaultAccessHeaderName  = "Authorization"
	defaultAccessAuthScheme  = "Bearer"
	defaultRefreshCookieName = "refreshtoken"
)

type Config struct {
	// Header and auth scheme to send access token with
	AccessHeaderName string
	AccessAuthScheme string

	// Cookie to keep refresh token in
	RefreshCookieName string

	// Send refresh cookie over https only
	CookieSecure bool
}

type accessManager interface {
	IssueAccess(user models.User) (models.IssuedToken, error)
	ParseAccess(ctx context.Context, access string) (tokenmanager.AccessTokenClaims, error)
}

type refreshAuthority interface {
	Issue(ctx context.Context, user models.User, client refresh.Client) (models.IssuedToken, error)
	Rotate(ctx context.Context, raw string, client refresh.Client) (models.TokenPair, error)
	Revoke(ctx context.Context, raw string, client refresh.Client) error
	ActiveForUser(ctx context.Context, scope repository.Scope, userID uuid.UUID) ([]models.RefreshToken, error)
	RefreshTTL() time.Duration
}

type userService interface {
	// Has to return apperrors.ErrInvalidCredentials on any mismatch
	Authenticate(ctx context.Context, tenantSlug string, email string, password string) (models.User, error)
	GetUserByID(ctx context.Context, scope repository.Scope, id uuid.UUID) (models.User, error)
}

// Failed logins counter
type loginLimiter interface {
	Check(ctx context.Context, tenant string, email string) error
	Fail(ctx context.Context, tenant string, email string) error
	Reset(ctx context.Context, tenant string, email string) error
}

type Option func(*AuthService)

// Throttle failed logins. Without limiter logins are not throttled
func WithLimiter(l loginLimiter) Option {
	return func(s *AuthService) { s.limiter = l }
}

func WithMetrics(m *metrics.Auth) Option {
	return func(s *AuthService) { s.metrics = m }
}

func WithLogger(l logger.Logger) Option {
	return func(s *AuthService) { s.logger = l }
}

// Auth service
type AuthService struct {
	accessHeaderName  string
	accessAuthScheme  string
	refreshCookieName string
	cookieSecure      bool

	access    accessManager
	refresher refreshAuthority
	users     userService
	limiter   loginLimiter
	metrics   *metrics.Auth
	logger    logger.Logger
}

func NewService(cfg Config, access accessManager, refresher refreshAuthority, users userService, opts ...Option) (*AuthService, error) {
	setDefault := func(field *string, def string) {
		if *field == "" {
			*field = def
		}
	}
	setDefault(&cfg.AccessHeaderName, defaultAccessHeaderName)
	setDefault(&cfg.AccessAuthScheme, defaultAccessAuthScheme)
	setDefault(&cfg.RefreshCookieName, defaultRefreshCookieName)

	s := &AuthService{
		accessHeaderName:  cfg.AccessHeaderName,
		accessAuthScheme:  cfg.AccessAuthScheme,
		refreshCookieName: cfg.RefreshCookieName,
		cookieSecure:      cfg.CookieSecure,
		access:            access,
		refresher:         refresher,
		users:             users,
		logger:            logger.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Login user within the tenant and start new session
// Has to return apperrors.ErrInvalidCredentials if credentials not match
// and apperrors.ErrRateLimited if too many failed attempts happened
func (s *AuthService) Login(ctx context.Context, tenantSlug string, email string, password string, ip string) (models.TokenPair, error) {
	if s.limiter != nil {
		if err := s.limiter.Check(ctx, tenantSlug, email); err != nil {
			if errors.Is(err, apperrors.ErrRateLimited) {
				s.metrics.Login(metrics.ResultRateLimited)
			}
			return models.TokenPair{}, err
		}
	}

	user, err := s.users.Authenticate(ctx, tenantSlug, email, password)
	switch {
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		s.metrics.Login(metrics.ResultInvalid)
		if s.limiter != nil {
			if err := s.limiter.Fail(ctx, tenantSlug, email); err != nil {
				return models.TokenPair{}, fmt.Errorf("login attempt not counted. Err: %w", err)
			}
		}
		return models.TokenPair{}, apperrors.ErrInvalidCredentials
	case err != nil:
		s.metrics.Login(metrics.ResultError)
		return models.TokenPair{}, err
	}

	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, tenantSlug, email); err != nil {
			return models.TokenPair{}, err
		}
	}

	access, err := s.access.IssueAccess(user)
	if err != nil {
		s.metrics.Login(metrics.ResultError)
		return models.TokenPair{}, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	refreshToken, err := s.refresher.Issue(ctx, user, refresh.Client{IP: ip})
	if err != nil {
		s.metrics.Login(metrics.ResultError)
		return models.TokenPair{}, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	s.metrics.Login(metrics.ResultSuccess)
	s.logger.Info("User logged in", "user_id", user.ID, "tenant_id", user.TenantID)

	return models.TokenPair{Access: access, Refresh: refreshToken}, nil
}

// Exchange refresh token to the new token pair
// Errors are of refresh.Authority Rotate
func (s *AuthService) Refresh(ctx context.Context, raw string, ip string) (models.TokenPair, error) {
	pair, err := s.refresher.Rotate(ctx, raw, refresh.Client{IP: ip})

	var reuse *refresh.ReuseError
	switch {
	case err == nil:
		s.metrics.Refresh(metrics.ResultSuccess)
	case errors.As(err, &reuse):
		s.metrics.Refresh(metrics.ResultReuse)
		s.metrics.ReuseRevoked(reuse.Revoked)
	case errors.Is(err, apperrors.ErrTokenExpired):
		s.metrics.Refresh(metrics.ResultExpired)
	case errors.Is(err, apperrors.ErrInvalidToken):
		s.metrics.Refresh(metrics.ResultInvalid)
	default:
		s.metrics.Refresh(metrics.ResultError)
	}

	return pair, err
}

// Revoke refresh token. Unknown or already revoked token is ok
func (s *AuthService) Logout(ctx context.Context, raw string, ip string) error {
	if err := s.refresher.Revoke(ctx, raw, refresh.Client{IP: ip}); err != nil {
		return err
	}

	s.metrics.Logout()
	return nil
}

// Active refresh sessions of the user
func (s *AuthService) Sessions(ctx context.Context, user models.User) ([]models.RefreshToken, error) {
	return s.refresher.ActiveForUser(ctx, repository.TenantScope(user.TenantID), user.ID)
}

// Get request and return user if it authenticated or error
func (s *AuthService) Auth(ctx context.Context, r *http.Request) (models.User, error) {
	header := r.Header.Get(s.accessHeaderName)
	scheme, access, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, s.accessAuthScheme) || access == "" {
		return models.User{}, fmt.Errorf("access token not found: %w", apperrors.ErrUnauthorized)
	}

	claims, err := s.access.ParseAccess(ctx, access)
	if err != nil {
		return models.User{}, fmt.Errorf("%w: %w", apperrors.ErrUnauthorized, err)
	}

	user, err := s.users.GetUserByID(ctx, repository.TenantScope(claims.TenantID), claims.UserID)
	if err != nil {
		return models.User{}, fmt.Errorf("%w: %w", apperrors.ErrUnauthorized, err)
	}

	return user, nil
}

// Set auth tokens (access, refresh) to response
func (s *AuthService) SetTokenPairToResponse(w http.ResponseWriter, pair models.TokenPair) {
	w.Header().Set(s.accessHeaderName, s.accessAuthScheme+" "+pair.Access.Value)
	http.SetCookie(w, s.refreshCookie(pair.Refresh.Value, pair.Refresh.ExpiresAt, int(s.refresher.RefreshTTL().Seconds())))
}

// Set auth tokens to request as client would do
func (s *AuthService) SetTokenPairToRequest(r *http.Request, pair models.TokenPair) {
	r.Header.Set(s.accessHeaderName, s.accessAuthScheme+" "+pair.Access.Value)
	r.AddCookie(&http.Cookie{Name: s.refreshCookieName, Value: pair.Refresh.Value})
}

// Get refresh token from request
func (s *AuthService) GetRefreshString(r *http.Request) (string, error) {
	cookie, err := r.Cookie(s.refreshCookieName)
	if err != nil || cookie.Value == "" {
		return "", apperrors.ErrRefreshTokenNotFound
	}
	return cookie.Value, nil
}

// Ask client to forget refresh token
func (s *AuthService) ClearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, s.refreshCookie("", time.Unix(0, 0), -1))
}

func (s *AuthService) refreshCookie(value string, expires time.Time, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     s.refreshCookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	}
}
