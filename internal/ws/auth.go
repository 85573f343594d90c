package ws

import (
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"go_agentos/internal/auth"
)

// WrapWithAuth rejects Socket.IO handshakes that do not carry a valid JWT.
// The token is read from the token query parameter or a Bearer header.
func WrapWithAuth(next http.Handler, tokens *auth.Tokens, logger *logrus.Entry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// only the handshake is a GET without an sid
		if r.Method == http.MethodGet && r.URL.Query().Get("sid") == "" {
			token := tokenFrom(r.URL.Query().Get("token"), r.Header.Get("Authorization"))
			if token == "" {
				logger.WithField("remote", r.RemoteAddr).Warn("Handshake rejected: no token")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := tokens.Parse(token)
			if err != nil {
				logger.WithError(err).WithField("remote", r.RemoteAddr).Warn("Handshake rejected: invalid token")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			logger.WithFields(logrus.Fields{
				"user":      claims.Username,
				"tenant_id": claims.TenantID,
			}).Debug("Handshake accepted")
		}

		next.ServeHTTP(w, r)
	})
}

// tokenFrom picks the query token first, then a Bearer header
func tokenFrom(query, header string) string {
	if query != "" {
		return query
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}
	return ""
}
