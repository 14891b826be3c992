package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const telegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// RequireTelegramSecret guards the webhook endpoint by comparing the secret
// token Telegram echoes back on every update delivery. An empty configured
// secret disables the check.
func RequireTelegramSecret(secret string) func(http.Handler) http.Handler {
	secret = strings.TrimSpace(secret)
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get(telegramSecretHeader)
			if subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) != 1 {
				respondAuthError(w, r, http.StatusUnauthorized, "invalid_token", "webhook secret token mismatch")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
