package core

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"valor/internal/types"
)

// RequireAdmin rejects requests without a valid admin bearer token and puts
// the session in the context for handlers. With no verifier configured every
// request is rejected.
func (s *Server) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Admin == nil {
			Error(w, r, types.NewAppError(types.ErrCodePermissionAdmin, "Admin access is not configured", nil))
			return
		}

		token := extractBearerToken(r.Header.Get("Authorization"))
		if token == "" {
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Bearer token is required", nil))
			return
		}

		session, err := s.Admin.Verify(token)
		if err != nil {
			var appErr *types.AppError
			if !errors.As(err, &appErr) {
				err = types.NewAppError(types.ErrCodeAuthTokenInvalid, "Invalid authentication token", err)
			}
			s.Logger.WarnContext(r.Context(), "admin authentication failed",
				slog.String("path", r.URL.Path),
				slog.String("error_code", string(types.CodeOf(err))),
			)
			Error(w, r, err)
			return
		}
		if !session.IsAdmin {
			Error(w, r, types.NewAppError(types.ErrCodePermissionAdmin, "Admin access required", nil))
			return
		}

		next.ServeHTTP(w, r.WithContext(types.WithAdmin(r.Context(), session)))
	})
}

// extractBearerToken returns the token from "Bearer <token>"; the scheme is
// case-insensitive.
func extractBearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
