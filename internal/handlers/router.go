package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/nkiryanov/schoolhub/internal/handlers/middleware"
	"github.com/nkiryanov/schoolhub/internal/handlers/render"
	"github.com/nkiryanov/schoolhub/internal/logger"
	"github.com/nkiryanov/schoolhub/internal/models"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

type RouterConfig struct {
	// Requests per minute from one IP to the auth routes. Zero disables throttling
	AuthRateLimit int

	// Served on /metrics if set
	Metrics http.Handler
}

func NewRouter(cfg RouterConfig, authService authService, logger logger.Logger) http.Handler {
	withAuth := middleware.AuthMiddleware(authService)

	apiauth := http.NewServeMux()

	apiauth.Handle("POST /login", handleLogin(authService, logger))
	apiauth.Handle("POST /refresh", handleRefresh(authService, logger))
	apiauth.Handle("POST /logout", handleLogout(authService, logger))
	apiauth.Handle("GET /me", withAuth(handleMe()))
	apiauth.Handle("GET /sessions", withAuth(handleSessions(authService, logger)))

	var auth http.Handler = apiauth
	if cfg.AuthRateLimit > 0 {
		auth = httprate.Limit(cfg.AuthRateLimit, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				render.ServiceError(w, "Too many requests", http.StatusTooManyRequests)
			}),
		)(auth)
	}

	root := http.NewServeMux()
	root.Handle("/api/auth/", http.StripPrefix("/api/auth", auth))
	if cfg.Metrics != nil {
		root.Handle("GET /metrics", cfg.Metrics)
	}

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

type authService interface {
	// Login user of the tenant with email and password
	// Has to return apperrors.ErrInvalidCredentials if credentials not match
	// and apperrors.ErrRateLimited if too many failed attempts happened
	Login(ctx context.Context, tenantSlug string, email string, password string, ip string) (models.TokenPair, error)

	// Rotate refresh token
	// If token expired: has to return apperrors.ErrTokenExpired
	// If token reused: has to return apperrors.ErrTokenReuseDetected
	// Otherwise apperrors.ErrInvalidToken
	Refresh(ctx context.Context, refresh string, ip string) (models.TokenPair, error)

	// Revoke refresh token. Unknown or revoked token is not an error
	Logout(ctx context.Context, refresh string, ip string) error

	// Active refresh sessions of the user
	Sessions(ctx context.Context, user models.User) ([]models.RefreshToken, error)

	// Set auth tokens (access, refresh) to response
	SetTokenPairToResponse(w http.ResponseWriter, pair models.TokenPair)

	// Get refresh token from request
	GetRefreshString(r *http.Request) (string, error)

	// Expire refresh cookie on client
	ClearRefreshCookie(w http.ResponseWriter)

	// Get request and return user if it authenticated or error
	Auth(ctx context.Context, r *http.Request) (models.User, error)
}
