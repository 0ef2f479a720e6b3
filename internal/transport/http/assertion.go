package httptransport

import (
	"github.com/golang-jwt/jwt/v5"

	"mercato/internal/identity/models"
	dErrors "mercato/pkg/domain-errors"
)

// assertionClaims is the shape of a provider-issued identity assertion JWT.
// The issuer names the provider and sub carries the provider-scoped subject.
type assertionClaims struct {
	Email      string `json:"email"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	jwt.RegisteredClaims
}

// parseAssertion verifies the assertion JWT and lifts its claims into the
// domain's IdentityAssertion. Only HMAC signatures are accepted.
func parseAssertion(raw string, key []byte) (models.IdentityAssertion, error) {
	if raw == "" {
		return models.IdentityAssertion{}, dErrors.New(dErrors.CodeBadRequest, "missing identity assertion")
	}

	var claims assertionClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, dErrors.Newf(dErrors.CodeUnauthorized, "unexpected signing method %v", t.Header["alg"])
		}
		return key, nil
	})
	if err != nil || !token.Valid {
		return models.IdentityAssertion{}, dErrors.New(dErrors.CodeUnauthorized, "invalid identity assertion")
	}

	assertion := models.IdentityAssertion{
		Provider:  claims.Issuer,
		SubjectID: claims.Subject,
		Email:     claims.Email,
		FirstName: claims.GivenName,
		LastName:  claims.FamilyName,
	}
	if err := assertion.Validate(); err != nil {
		return models.IdentityAssertion{}, err
	}
	return assertion, nil
}
