package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"opsportal/pkg/requestcontext"
)

// Actor resolves the acting user from a Bearer token and stores it in the
// request context. Requests without a token run as the system actor; a token
// that fails verification is ignored rather than rejected, because every
// lifecycle operation is already gated upstream and the actor here only feeds
// the activity log.
func Actor(signingKey []byte, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if actor, ok := actorFromHeader(r.Header.Get("Authorization"), signingKey); ok {
				ctx = requestcontext.WithActor(ctx, actor)
			} else {
				if r.Header.Get("Authorization") != "" {
					logger.WarnContext(ctx, "unverifiable bearer token, recording as system actor",
						"request_id", GetRequestID(ctx),
					)
				}
				ctx = requestcontext.WithActor(ctx, requestcontext.SystemActor)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type actorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func actorFromHeader(header string, signingKey []byte) (requestcontext.Actor, bool) {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return requestcontext.Actor{}, false
	}

	claims := &actorClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return signingKey, nil
	})
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return requestcontext.Actor{}, false
	}

	role := claims.Role
	if role == "" {
		role = "user"
	}
	return requestcontext.Actor{ID: claims.Subject, Role: role}, true
}
