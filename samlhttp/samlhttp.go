// Package samlhttp bridges the saml package to net/http: it serves the
// assertion consumer and single logout endpoints, keeps sessions in
// signed cookies and tracks outstanding authentication requests so
// responses can be correlated.
package samlhttp

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"

	"github.com/markfullmer/saml"
)

// Options are the parameters for New.
type Options struct {
	// URL is the root URL of the application, e.g.
	// https://sp.example.com. The SAML endpoints are derived from it:
	// /saml/acs and /saml/slo.
	URL url.URL

	// EntityID of this service provider. Defaults to the ACS URL.
	EntityID string

	// Key and Certificate sign outgoing messages and decrypt incoming
	// encrypted assertions. The key also signs session and request
	// tracking cookies.
	Key         *rsa.PrivateKey
	Certificate *x509.Certificate

	// IdP describes the identity provider, typically from
	// saml.ParseIdPMetadata or FetchIdPMetadata.
	IdP saml.IdPSettings

	// SignRequests signs outgoing AuthnRequest and logout messages.
	SignRequests bool

	// AllowIDPInitiated accepts responses that do not answer a request
	// we issued.
	AllowIDPInitiated bool

	// Security overrides the derived security settings entirely when
	// set.
	Security *saml.SecuritySettings

	CookieName     string
	CookieSameSite http.SameSite

	// DefaultRedirectURI is used after IdP-initiated flows.
	DefaultRedirectURI string
}

// New builds a Middleware with reasonable defaults: strict validation,
// JWT session cookies signed with the service provider key, and
// cookie-tracked request IDs.
func New(opts Options) (*Middleware, error) {
	if opts.Key == nil {
		return nil, fmt.Errorf("samlhttp: a key is required")
	}

	acsURL := opts.URL
	acsURL.Path += "/saml/acs"
	sloURL := opts.URL
	sloURL.Path += "/saml/slo"
	entityID := opts.EntityID
	if entityID == "" {
		entityID = acsURL.String()
	}

	settings := &saml.Settings{
		Strict: true,
		SP: saml.SPSettings{
			EntityID:                    entityID,
			AssertionConsumerServiceURL: acsURL.String(),
			SingleLogoutServiceURL:      sloURL.String(),
			Key:                         opts.Key,
			Certificate:                 opts.Certificate,
		},
		IdP: opts.IdP,
	}
	if opts.Security != nil {
		settings.Security = *opts.Security
	} else {
		settings.Security = saml.SecuritySettings{
			AuthnRequestsSigned:  opts.SignRequests,
			LogoutRequestSigned:  opts.SignRequests,
			LogoutResponseSigned: opts.SignRequests,

			RejectUnsolicitedResponsesWithInResponseTo: !opts.AllowIDPInitiated,
		}
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	cookieName := opts.CookieName
	if cookieName == "" {
		cookieName = defaultSessionCookieName
	}

	m := &Middleware{
		Settings:           settings,
		DefaultRedirectURI: opts.DefaultRedirectURI,
		Session: CookieSessionProvider{
			Name:     cookieName,
			Domain:   opts.URL.Host,
			HTTPOnly: true,
			Secure:   opts.URL.Scheme == "https",
			SameSite: opts.CookieSameSite,
			MaxAge:   defaultSessionMaxAge,
			Codec: JWTSessionCodec{
				SigningMethod: jwt.SigningMethodRS256,
				Audience:      entityID,
				Issuer:        entityID,
				MaxAge:        defaultSessionMaxAge,
				Key:           opts.Key,
			},
		},
		RequestTracker: CookieRequestTracker{
			NamePrefix: "saml_",
			Path:       acsURL.Path,
			MaxAge:     saml.MaxIssueDelay,
			SameSite:   opts.CookieSameSite,
			Codec: JWTTrackedRequestCodec{
				SigningMethod: jwt.SigningMethodRS256,
				Audience:      entityID,
				Issuer:        entityID,
				MaxAge:        saml.MaxIssueDelay,
				Key:           opts.Key,
			},
		},
	}
	return m, nil
}

// FetchIdPMetadata retrieves and parses identity provider metadata
// from metadataURL, retrying transient failures. Identity providers
// are routinely slower to come up than the service providers that
// depend on them.
func FetchIdPMetadata(ctx context.Context, metadataURL string) (*saml.IdPSettings, error) {
	for i := 0; ; i++ {
		idp, err := fetchIdPMetadataOnce(ctx, metadataURL)
		if err == nil {
			return idp, nil
		}
		if i >= 10 || ctx.Err() != nil {
			return nil, err
		}
		log.WithError(err).WithField("url", metadataURL).Warn("cannot fetch metadata, will retry")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
}

func fetchIdPMetadataOnce(ctx context.Context, metadataURL string) (*saml.IdPSettings, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: %s", metadataURL, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return saml.ParseIdPMetadata(data)
}
