package core

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"nexora/internal/types"
)

// ServiceAuthMiddleware guards internal API routes with the shared service
// key. The ERP backend is the only expected caller of the /v1 billing
// surface; it authenticates with "Authorization: Bearer <service key>".
//
//  1. Extracts the Bearer token from the Authorization header.
//  2. Compares it against the configured service key in constant time.
//  3. Injects a service Actor into the request context on success.
//  4. Returns 401 Unauthorized with distinct error codes on failure:
//     - auth_token_missing: No Authorization header or empty Bearer token.
//     - auth_token_invalid: Token does not match the service key.
func (s *Server) ServiceAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authorization header is required", nil))
			return
		}

		token := extractBearerToken(authHeader)
		if token == "" {
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Bearer token is required", nil))
			return
		}

		expected := s.Config.Security.ServiceAPIKey.Unmask()
		if subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenInvalid, "Invalid authentication token", nil))
			return
		}

		actor := types.Actor{ID: "erp-backend", Type: types.ActorTypeService}
		next.ServeHTTP(w, r.WithContext(types.WithActor(r.Context(), actor)))
	})
}

// extractBearerToken parses an Authorization header of the form
// "Bearer <token>". Returns an empty string when the scheme is missing or
// not Bearer. The scheme comparison is case-insensitive per RFC 7235.
func extractBearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
