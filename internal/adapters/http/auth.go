package httpadapter

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/medscanlab/neuroscan/internal/core/domain"
	"github.com/medscanlab/neuroscan/internal/core/ports"
)

type submitterClaims struct {
	DoctorID string `json:"doctorId"`
	FullName string `json:"fullName"`
	jwt.RegisteredClaims
}

// staffID prefers the doctorId claim issued by the auth service and falls
// back to the registered subject.
func (c *submitterClaims) staffID() string {
	if c.DoctorID != "" {
		return c.DoctorID
	}
	return c.Subject
}

// TokenVerifier resolves the submitting staff member from the bearer token.
// The raw token is also forwarded to the inference endpoint, which performs
// its own validation.
type TokenVerifier struct {
	secret []byte
}

func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

func (v *TokenVerifier) FromRequest(r *http.Request) (ports.Submitter, string, error) {
	header := r.Header.Get("Authorization")
	rawToken, found := strings.CutPrefix(header, "Bearer ")
	if !found || rawToken == "" {
		return ports.Submitter{}, "", domain.WrapError(domain.ErrUnauthorized, "verify token",
			errors.New("missing bearer token"))
	}

	claims := &submitterClaims{}
	_, err := jwt.ParseWithClaims(rawToken, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return ports.Submitter{}, "", domain.WrapError(domain.ErrUnauthorized, "verify token", err)
	}
	id := claims.staffID()
	if id == "" {
		return ports.Submitter{}, "", domain.WrapError(domain.ErrUnauthorized, "verify token",
			errors.New("token identifies no staff member"))
	}

	return ports.Submitter{ID: id, FullName: claims.FullName}, rawToken, nil
}
