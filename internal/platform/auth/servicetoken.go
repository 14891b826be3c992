package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultServiceTokenLeeway = 30 * time.Second

// ServiceTokenValidator verifies HMAC-signed service tokens presented by
// internal callers such as the admin console backend.
type ServiceTokenValidator struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
	clock    func() time.Time
}

// ServiceTokenOption customises ServiceTokenValidator instances.
type ServiceTokenOption func(*ServiceTokenValidator)

// WithServiceTokenLeeway overrides the clock skew tolerance.
func WithServiceTokenLeeway(d time.Duration) ServiceTokenOption {
	return func(v *ServiceTokenValidator) {
		if d > 0 {
			v.leeway = d
		}
	}
}

// WithServiceTokenClock overrides the time source used during validation.
func WithServiceTokenClock(clock func() time.Time) ServiceTokenOption {
	return func(v *ServiceTokenValidator) {
		if clock != nil {
			v.clock = clock
		}
	}
}

// NewServiceTokenValidator constructs a validator for HS256 service tokens.
func NewServiceTokenValidator(secret, issuer, audience string, opts ...ServiceTokenOption) (*ServiceTokenValidator, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: service token secret is required")
	}

	v := &ServiceTokenValidator{
		secret:   []byte(secret),
		issuer:   strings.TrimSpace(issuer),
		audience: strings.TrimSpace(audience),
		leeway:   defaultServiceTokenLeeway,
		clock:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v, nil
}

// Validate parses and verifies the token, returning the subject claim.
func (v *ServiceTokenValidator) Validate(tokenStr string) (string, error) {
	if v == nil {
		return "", errors.New("auth: service token validator not initialised")
	}

	claims := &jwt.RegisteredClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return v.clock().Add(-v.leeway) }),
	)
	token, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return "", ErrTokenInvalid
	}
	if v.issuer != "" && claims.Issuer != v.issuer {
		return "", fmt.Errorf("%w: unexpected issuer", ErrTokenInvalid)
	}
	if v.audience != "" && !containsAudience(claims.Audience, v.audience) {
		return "", fmt.Errorf("%w: unexpected audience", ErrTokenInvalid)
	}
	if claims.ExpiresAt == nil {
		return "", fmt.Errorf("%w: missing expiry", ErrTokenInvalid)
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return subject, nil
}

// RequireServiceToken verifies the Authorization bearer token and stores a
// staff identity on the request context.
func (v *ServiceTokenValidator) RequireServiceToken() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				respondAuthError(w, r, http.StatusUnauthorized, "unauthenticated", "authorization header missing or invalid")
				return
			}
			subject, err := v.Validate(tokenStr)
			if err != nil {
				respondAuthError(w, r, http.StatusUnauthorized, "invalid_token", "service token verification failed")
				return
			}

			identity := &Identity{
				UID:   subject,
				Roles: []string{RoleStaff},
			}
			ctx := WithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func containsAudience(audience jwt.ClaimStrings, want string) bool {
	for _, aud := range audience {
		if aud == want {
			return true
		}
	}
	return false
}
