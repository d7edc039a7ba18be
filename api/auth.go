package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ActorHeader names the caller when no JWT secret is configured.
const ActorHeader = "X-Actor"

const anonymousActor = "anonymous"

type ctxKey int

const (
	actorKey ctxKey = iota
	branchKey
)

// Claims is the token payload. Subject is the actor stamped on ledger
// entries; Branch, when set, is the caller's default branch.
type Claims struct {
	Branch string `json:"branch,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken signs an HS256 token for actor.
func GenerateToken(secret, actor, branch string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Branch: branch,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// Authenticate resolves the caller. With a secret, every request needs a
// valid Bearer token. Without one, the X-Actor header is trusted, which is
// only meant for local use.
func Authenticate(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				actor := r.Header.Get(ActorHeader)
				if actor == "" {
					actor = anonymousActor
				}
				next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), actor, "")))
				return
			}

			claims, err := parseBearer(r.Header.Get("Authorization"), secret)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Unauthorized", err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), claims.Subject, claims.Branch)))
		})
	}
}

func parseBearer(header, secret string) (*Claims, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return nil, fmt.Errorf("authorization header must be 'Bearer <token>'")
	}

	token, err := jwt.ParseWithClaims(parts[1], &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	return claims, nil
}

func withCaller(ctx context.Context, actor, branch string) context.Context {
	ctx = context.WithValue(ctx, actorKey, actor)
	return context.WithValue(ctx, branchKey, branch)
}

// ActorFrom returns the authenticated actor, or "anonymous".
func ActorFrom(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey).(string); ok && actor != "" {
		return actor
	}
	return anonymousActor
}

// BranchFrom returns the caller's branch from the token, if any.
func BranchFrom(ctx context.Context) string {
	branch, _ := ctx.Value(branchKey).(string)
	return branch
}
