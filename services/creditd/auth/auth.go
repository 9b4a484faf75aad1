package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"creditpool/native/common"
)

type contextKey string

const contextKeyClaims contextKey = "credit_claims"

// ErrNoClaims is returned when a handler runs without an authenticated
// identity in its context.
var ErrNoClaims = errors.New("auth: no claims in context")

// Claims is the identity attached to an authenticated request. Subject is
// the ledger identity used as the engine caller.
type Claims struct {
	Subject string
}

// Verifier validates HS256 bearer tokens minted for the facility.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier constructs a Verifier for the shared HMAC secret.
func NewVerifier(secret, issuer string) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: empty signing secret")
	}
	return &Verifier{secret: []byte(secret), issuer: strings.TrimSpace(issuer)}, nil
}

// Middleware authenticates the request and stores the claims in the context.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(header, "Bearer ") {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		claims, err := v.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), contextKeyClaims, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Verify parses and validates a raw token string.
func (v *Verifier) Verify(raw string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if v.issuer != "" {
		options = append(options, jwt.WithIssuer(v.issuer))
	}
	token, err := jwt.Parse(strings.TrimSpace(raw), func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, options...)
	if err != nil {
		return nil, fmt.Errorf("auth: parse token: %w", err)
	}
	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("auth: unexpected claims shape")
	}
	subject, err := mapClaims.GetSubject()
	if err != nil || strings.TrimSpace(subject) == "" {
		return nil, errors.New("auth: token missing subject")
	}
	return &Claims{Subject: strings.TrimSpace(subject)}, nil
}

// IssueToken mints a short-lived token for the given subject. Operator
// binaries and tests use this; verification only needs the shared secret.
func IssueToken(secret, issuer, subject string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if strings.TrimSpace(issuer) != "" {
		claims["iss"] = strings.TrimSpace(issuer)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// FromContext extracts the authenticated claims placed by Middleware.
func FromContext(ctx context.Context) (*Claims, error) {
	claims, ok := ctx.Value(contextKeyClaims).(*Claims)
	if !ok || claims == nil {
		return nil, ErrNoClaims
	}
	return claims, nil
}

// OperatorSet is a fixed allowlist of ledger identities granted the operator
// capability. It satisfies the engine's authorizer contract.
type OperatorSet struct {
	members map[string]struct{}
}

// NewOperatorSet builds the allowlist from configuration.
func NewOperatorSet(subjects []string) *OperatorSet {
	members := make(map[string]struct{}, len(subjects))
	for _, subject := range subjects {
		trimmed := strings.TrimSpace(subject)
		if trimmed == "" {
			continue
		}
		members[trimmed] = struct{}{}
	}
	return &OperatorSet{members: members}
}

// Authorize grants every capability to listed members.
func (s *OperatorSet) Authorize(caller, capability string) error {
	if s == nil {
		return fmt.Errorf("%w: no operator set configured", common.ErrUnauthorized)
	}
	if _, ok := s.members[strings.TrimSpace(caller)]; ok {
		return nil
	}
	return fmt.Errorf("%w: %s lacks capability %s", common.ErrUnauthorized, caller, capability)
}

// Contains reports whether the subject is a configured operator.
func (s *OperatorSet) Contains(subject string) bool {
	if s == nil {
		return false
	}
	_, ok := s.members[strings.TrimSpace(subject)]
	return ok
}
