package samlhttp

import (
	"crypto"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/markfullmer/saml"
)

const (
	defaultSessionMaxAge  = time.Hour
	claimNameSessionIndex = "SessionIndex"
)

// JWTSessionCodec implements SessionCodec to encode and decode
// sessions as signed JWTs.
type JWTSessionCodec struct {
	SigningMethod jwt.SigningMethod
	Audience      string
	Issuer        string
	MaxAge        time.Duration
	Key           crypto.Signer
}

var _ SessionCodec = JWTSessionCodec{}

// New creates a Session from a validated authentication.
//
// The returned Session is a JWTSessionClaims.
func (c JWTSessionCodec) New(a *saml.Auth) (Session, error) {
	now := saml.TimeNow()
	claims := JWTSessionClaims{}
	claims.SAMLSession = true
	claims.Audience = jwt.ClaimStrings{c.Audience}
	claims.Issuer = c.Issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(c.MaxAge))
	claims.NotBefore = jwt.NewNumericDate(now)
	if expiration := a.SessionExpiration(); expiration != nil && expiration.Before(now.Add(c.MaxAge)) {
		claims.ExpiresAt = jwt.NewNumericDate(*expiration)
	}

	if nameID := a.NameID(); nameID != nil {
		claims.Subject = nameID.Value
	}

	claims.Attributes = Attributes{}
	for name, values := range a.FriendlyAttributes() {
		claims.Attributes[name] = append(claims.Attributes[name], values...)
	}
	for name, values := range a.Attributes() {
		if _, ok := claims.Attributes[name]; !ok {
			claims.Attributes[name] = append(claims.Attributes[name], values...)
		}
	}
	if a.SessionIndex() != "" {
		claims.Attributes[claimNameSessionIndex] = []string{a.SessionIndex()}
	}

	return claims, nil
}

// Encode returns a serialized version of the Session.
//
// The provided session must be a JWTSessionClaims, otherwise this
// function will panic.
func (c JWTSessionCodec) Encode(s Session) (string, error) {
	claims := s.(JWTSessionClaims) // this will panic if you pass the wrong kind of session

	token := jwt.NewWithClaims(c.SigningMethod, claims)
	signedString, err := token.SignedString(c.Key)
	if err != nil {
		return "", err
	}

	return signedString, nil
}

// Decode parses the serialized session that may have been returned by
// Encode and returns a Session.
func (c JWTSessionCodec) Decode(signed string) (Session, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{c.SigningMethod.Alg()}),
		jwt.WithTimeFunc(saml.TimeNow),
		jwt.WithAudience(c.Audience),
		jwt.WithIssuer(c.Issuer),
	)
	claims := JWTSessionClaims{}
	_, err := parser.ParseWithClaims(signed, &claims, func(*jwt.Token) (interface{}, error) {
		return c.Key.Public(), nil
	})
	if err != nil {
		return nil, err
	}
	if !claims.SAMLSession {
		return nil, errors.New("expected saml-session")
	}
	return claims, nil
}

// JWTSessionClaims represents the JWT claims of an encoded session.
type JWTSessionClaims struct {
	jwt.RegisteredClaims
	Attributes  Attributes `json:"attr"`
	SAMLSession bool       `json:"saml-session"`
}

var _ SessionWithAttributes = JWTSessionClaims{}

// GetAttributes implements SessionWithAttributes.
func (c JWTSessionClaims) GetAttributes() Attributes {
	return c.Attributes
}
