package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"accessfabric/internal/transport/http/httputil"
	"accessfabric/internal/apperrors"
)

// adminClaims is the minimal claim set an admin bearer token must carry:
// registered claims only, no subject-specific fields, since the control
// plane has no notion of an authenticated end user, only an authenticated
// operator.
type adminClaims struct {
	jwt.RegisteredClaims
}

// RequireAdmin gates every route mounted under it behind a Bearer JWT
// signed with signingKey. It carries none of the session/device claim
// extraction the teacher's end-user auth middleware does, since the
// control plane recognizes one role ("operator"), not individual
// identities.
func RequireAdmin(signingKey []byte, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const bearerPrefix = "Bearer "
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, bearerPrefix)
			if !ok || token == "" {
				httputil.WriteError(w, apperrors.New(apperrors.CodeValidation, "http", "missing or malformed Authorization header"))
				return
			}

			parsed, err := jwt.ParseWithClaims(token, &adminClaims{}, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrTokenUnverifiable
				}
				return signingKey, nil
			})
			if err != nil || !parsed.Valid {
				log.WarnContext(r.Context(), "admin auth rejected", "error", err)
				httputil.WriteError(w, apperrors.New(apperrors.CodeValidation, "http", "invalid or expired admin token"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
