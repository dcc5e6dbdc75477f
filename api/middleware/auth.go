package middleware

import (
	"net/http"
	"strings"

	"github.com/pixelboost-ai/billing-service/api/responses"
	"github.com/pixelboost-ai/billing-service/internal/profiles"
	pkgauth "github.com/pixelboost-ai/billing-service/pkg/auth"
	"github.com/pixelboost-ai/billing-service/pkg/config"
	pkgerrors "github.com/pixelboost-ai/billing-service/pkg/errors"
	"github.com/pixelboost-ai/billing-service/pkg/logger"
)

// Auth validates a Supabase bearer token and seeds the request context with
// the user id and role. The role comes from the profile row, not the token:
// Supabase JWTs carry the postgrest role ("authenticated"), which says
// nothing about admin access.
func Auth(cfg config.SupabaseConfig, profileRepo profiles.Repository, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgauth.ParseToken(cfg.JWTSecret, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			userID, err := claims.UserID()
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token subject"))
				return
			}

			profile, err := profileRepo.FindByID(r.Context(), userID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load profile"))
				return
			}
			if profile == nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "unknown user"))
				return
			}

			ctx := WithUserID(r.Context(), userID)
			ctx = WithRole(ctx, profile.Role)

			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{
					"user_id":    userID.String(),
					"actor_role": string(profile.Role),
				})
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
