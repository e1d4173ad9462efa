// Package testsaml decodes Redirect binding URLs back into XML so
// tests can assert against the messages rather than their encoding.
package testsaml

import (
	"bytes"
	"compress/flate"
	"encoding/base64"
	"fmt"
	"io"
	"net/url"
)

// inflate reverses the Redirect binding encoding of one query
// parameter: base64, then raw DEFLATE.
func inflate(u *url.URL, param string) ([]byte, error) {
	compressed, err := base64.StdEncoding.DecodeString(u.Query().Get(param))
	if err != nil {
		return nil, fmt.Errorf("cannot decode %s: %v", param, err)
	}
	raw, err := io.ReadAll(flate.NewReader(bytes.NewReader(compressed)))
	if err != nil {
		return nil, fmt.Errorf("cannot inflate %s: %v", param, err)
	}
	return raw, nil
}

// ParseRedirectRequest returns the XML carried by the SAMLRequest
// parameter of u.
func ParseRedirectRequest(u *url.URL) ([]byte, error) {
	return inflate(u, "SAMLRequest")
}

// ParseRedirectResponse returns the XML carried by the SAMLResponse
// parameter of u.
func ParseRedirectResponse(u *url.URL) ([]byte, error) {
	return inflate(u, "SAMLResponse")
}
