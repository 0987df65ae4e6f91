package middleware

import (
	"net/http"
	"strings"

	"github.com/MrEthical07/loginguard"
	"github.com/MrEthical07/loginguard/jwt"
)

// SessionParser validates session tokens. *loginguard.Engine satisfies it.
type SessionParser interface {
	ParseSession(token string) (*jwt.SessionClaims, error)
}

// RequireSession rejects requests without a valid bearer session token and
// stores the parsed claims in the request context, where
// loginguard.SessionFromContext finds them.
func RequireSession(parser SessionParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if parser == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := parser.ParseSession(token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := loginguard.WithSession(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

// BearerToken extracts the token from an "Authorization: Bearer" header value.
func BearerToken(value string) (string, bool) {
	return bearerToken(value)
}
