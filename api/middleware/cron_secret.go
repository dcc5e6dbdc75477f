package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/pixelboost-ai/billing-service/api/responses"
	pkgerrors "github.com/pixelboost-ai/billing-service/pkg/errors"
	"github.com/pixelboost-ai/billing-service/pkg/logger"
)

const cronSecretHeader = "x-cron-secret"

// CronSecret gates the cron trigger endpoints behind a shared secret.
// Comparison is constant time and a failed check touches nothing else.
func CronSecret(secret string, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := strings.TrimSpace(r.Header.Get(cronSecretHeader))
			if secret == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid cron secret"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
