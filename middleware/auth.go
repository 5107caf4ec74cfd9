package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/matchdesk/scoring-system/models"
)

type contextKey string

const actorContextKey contextKey = "actor"

var ErrNoActor = errors.New("no authenticated actor in context")

// Authenticate extracts the actor from an HS256 bearer token. Websocket
// clients cannot set headers on the upgrade request from a browser, so a
// `token` query parameter is accepted as a fallback.
func Authenticate(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				raw = r.URL.Query().Get("token")
			}
			if raw == "" {
				http.Error(w, "missing credentials", http.StatusUnauthorized)
				return
			}

			actor, err := parseActor(raw, secret)
			if err != nil {
				http.Error(w, "invalid credentials", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), actorContextKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func ActorFromContext(ctx context.Context) (models.Actor, error) {
	actor, ok := ctx.Value(actorContextKey).(models.Actor)
	if !ok {
		return models.Actor{}, ErrNoActor
	}
	return actor, nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

func parseActor(raw string, secret []byte) (models.Actor, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		return models.Actor{}, err
	}
	if !token.Valid {
		return models.Actor{}, errors.New("token is not valid")
	}

	userIDRaw, ok := claims["user_id"].(string)
	if !ok {
		return models.Actor{}, errors.New("user_id claim missing")
	}
	userID, err := uuid.Parse(userIDRaw)
	if err != nil {
		return models.Actor{}, errors.New("user_id claim is not a uuid")
	}
	role, _ := claims["role"].(string)

	return models.Actor{UserID: userID, Role: role}, nil
}
