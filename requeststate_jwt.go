package saml2

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"
)

var defaultStateSigningMethod = jwt.SigningMethodRS256

// JWTStateCodec serializes StoredRequestState as a signed JWT so that
// deployments which keep pending-request state outside process memory
// (a cookie, a shared cache) can carry it without trusting the
// transport. Take-on-use semantics remain the store's job; the codec
// only protects integrity.
type JWTStateCodec struct {
	SigningMethod jwt.SigningMethod
	Audience      string
	Issuer        string
	MaxAge        time.Duration
	Pair          CertificatePair
}

type jwtStateClaims struct {
	jwt.StandardClaims
	IDP              string `json:"idp"`
	MessageID        string `json:"message-id"`
	ReturnURL        string `json:"return-url"`
	SAMLAuthnRequest bool   `json:"saml-authn-request"`
}

func (c JWTStateCodec) signingMethod() jwt.SigningMethod {
	if c.SigningMethod != nil {
		return c.SigningMethod
	}
	return defaultStateSigningMethod
}

// Encode returns a signed token carrying state, bound to the relay
// state key through the subject claim.
func (c JWTStateCodec) Encode(key string, state *StoredRequestState) (string, error) {
	now := TimeNow()
	claims := jwtStateClaims{
		StandardClaims: jwt.StandardClaims{
			Audience:  c.Audience,
			ExpiresAt: now.Add(c.MaxAge).Unix(),
			IssuedAt:  now.Unix(),
			Issuer:    c.Issuer,
			NotBefore: now.Unix(),
			Subject:   key,
		},
		IDP:              state.IDP,
		MessageID:        state.MessageID,
		ReturnURL:        state.ReturnURL,
		SAMLAuthnRequest: true,
	}
	token := jwt.NewWithClaims(c.signingMethod(), claims)
	return token.SignedString(c.Pair.Key)
}

// Decode verifies the token and returns the relay state key and the
// state it carried.
func (c JWTStateCodec) Decode(signed string) (string, *StoredRequestState, error) {
	parser := jwt.Parser{
		ValidMethods: []string{c.signingMethod().Alg()},
	}
	claims := jwtStateClaims{}
	_, err := parser.ParseWithClaims(signed, &claims, func(*jwt.Token) (interface{}, error) {
		return c.Pair.Certificate.PublicKey, nil
	})
	if err != nil {
		return "", nil, err
	}
	if !claims.VerifyAudience(c.Audience, true) {
		return "", nil, errors.Errorf("expected audience %q, got %q", c.Audience, claims.Audience)
	}
	if !claims.VerifyIssuer(c.Issuer, true) {
		return "", nil, errors.Errorf("expected issuer %q, got %q", c.Issuer, claims.Issuer)
	}
	if !claims.SAMLAuthnRequest {
		return "", nil, errors.New("token is not a tracked authentication request")
	}
	return claims.Subject, &StoredRequestState{
		IDP:       claims.IDP,
		MessageID: claims.MessageID,
		ReturnURL: claims.ReturnURL,
		CreatedAt: time.Unix(claims.IssuedAt, 0).UTC(),
	}, nil
}
