package handlers

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/schoolhub/internal/apperrors"
	"github.com/nkiryanov/schoolhub/internal/handlers/render"
	"github.com/nkiryanov/schoolhub/internal/handlers/userctx"
	"github.com/nkiryanov/schoolhub/internal/logger"
	"github.com/nkiryanov/schoolhub/internal/models"
)

const SessionRevokedErrorType = "session_revoked"

type messageResponse struct {
	Message string `json:"message"`
}

func handleLogin(authService authService, l logger.Logger) http.Handler {
	type request struct {
		Tenant   string `json:"tenant" validate:"required,slug"`
		Email    string `json:"email" validate:"required,email,max=254"`
		Password string `json:"password" validate:"required,max=1024"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		pair, err := authService.Login(r.Context(), data.Tenant, data.Email, data.Password, clientIP(r))
		switch {
		case err == nil:
			authService.SetTokenPairToResponse(w, pair)
			render.JSON(w, messageResponse{Message: "User logged in successfully"})
		case errors.Is(err, apperrors.ErrInvalidCredentials):
			render.ServiceError(w, "User not found", http.StatusUnauthorized)
		case errors.Is(err, apperrors.ErrRateLimited):
			render.ServiceError(w, "Too many login attempts", http.StatusTooManyRequests)
		default:
			l.Error("Failed to login user", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleRefresh(authService authService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refresh, err := authService.GetRefreshString(r)
		if err != nil {
			render.ServiceError(w, "Refresh token not found", http.StatusUnauthorized)
			return
		}

		pair, err := authService.Refresh(r.Context(), refresh, clientIP(r))
		switch {
		case err == nil:
			authService.SetTokenPairToResponse(w, pair)
			render.JSON(w, messageResponse{Message: "Tokens refreshed successfully"})
		case errors.Is(err, apperrors.ErrTokenReuseDetected):
			authService.ClearRefreshCookie(w)
			render.Error(w, SessionRevokedErrorType, "Refresh token reused. All sessions were terminated, please login again", http.StatusUnauthorized)
		case errors.Is(err, apperrors.ErrTokenExpired):
			render.ServiceError(w, "Refresh token expired", http.StatusUnauthorized)
		case errors.Is(err, apperrors.ErrInvalidToken):
			render.ServiceError(w, "Refresh token not found", http.StatusUnauthorized)
		default:
			l.Error("Failed to refresh tokens", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleLogout(authService authService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Nothing to revoke without cookie but client still wants to be logged out
		if refresh, err := authService.GetRefreshString(r); err == nil {
			if err := authService.Logout(r.Context(), refresh, clientIP(r)); err != nil {
				l.Error("Failed to revoke refresh token", "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
				return
			}
		}

		authService.ClearRefreshCookie(w)
		render.JSON(w, messageResponse{Message: "User logged out successfully"})
	})
}

func handleMe() http.Handler {
	type response struct {
		ID       uuid.UUID   `json:"id"`
		Email    string      `json:"email"`
		TenantID uuid.UUID   `json:"tenant_id"`
		CampusID *uuid.UUID  `json:"campus_id"`
		Role     models.Role `json:"role"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, response{
			ID:       user.ID,
			Email:    user.Email,
			TenantID: user.TenantID,
			CampusID: user.CampusID,
			Role:     user.Role,
		})
	})
}

func handleSessions(authService authService, l logger.Logger) http.Handler {
	type session struct {
		ID          uuid.UUID `json:"id"`
		CreatedAt   time.Time `json:"created_at"`
		ExpiresAt   time.Time `json:"expires_at"`
		CreatedByIP string    `json:"created_by_ip"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		tokens, err := authService.Sessions(r.Context(), user)
		if err != nil {
			l.Error("Failed to list sessions", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		sessions := make([]session, 0, len(tokens))
		for _, t := range tokens {
			sessions = append(sessions, session{
				ID:          t.ID,
				CreatedAt:   t.CreatedAt,
				ExpiresAt:   t.ExpiresAt,
				CreatedByIP: t.CreatedByIP,
			})
		}

		render.JSON(w, sessions)
	})
}

// Client address without port. Proxies are not trusted
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
