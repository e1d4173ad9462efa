package saml

import (
	"bytes"
	"compress/flate"
	"crypto"
	"crypto/rsa"
	"crypto/sha1" // #nosec G505
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/beevik/etree"
)

type queryParam string

// Query parameter names of the Redirect binding.
const (
	SAMLRequest  queryParam = "SAMLRequest"
	SAMLResponse queryParam = "SAMLResponse"
	SigAlg       queryParam = "SigAlg"
	Signature    queryParam = "Signature"
	RelayState   queryParam = "RelayState"
)

// maxInflatedSize bounds INFLATE output while decoding the Redirect
// binding so a small message cannot decompress into gigabytes.
const maxInflatedSize = 10 * 1024 * 1024

// deflateEncode serializes el and applies the Redirect binding
// encoding: raw DEFLATE (RFC 1951, no zlib wrapper) then base64.
func deflateEncode(el *etree.Element) (string, error) {
	doc := etree.NewDocument()
	doc.SetRoot(el)

	buf := &bytes.Buffer{}
	encoder := base64.NewEncoder(base64.StdEncoding, buf)
	writer, err := flate.NewWriter(encoder, flate.BestCompression)
	if err != nil {
		return "", err
	}
	if _, err := doc.WriteTo(writer); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}
	if err := encoder.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// deflateDecode reverses the Redirect binding encoding.
func deflateDecode(encoded string) ([]byte, error) {
	compressed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrInvalidXML.wrap(err, "cannot decode base64")
	}
	reader := flate.NewReader(bytes.NewReader(compressed))
	defer reader.Close()
	out, err := io.ReadAll(io.LimitReader(reader, maxInflatedSize))
	if err != nil {
		return nil, ErrInvalidXML.wrap(err, "cannot inflate message")
	}
	return out, nil
}

// postEncode applies the POST binding encoding: base64 of the raw XML.
func postEncode(el *etree.Element) (string, error) {
	doc := etree.NewDocument()
	doc.SetRoot(el)
	raw, err := doc.WriteToBytes()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func postDecode(encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrInvalidXML.wrap(err, "cannot decode base64")
	}
	return raw, nil
}

// signQuery returns the complete Redirect binding query string for a
// message: the parameter, the optional relay state, the signature
// algorithm and the signature, in the order the binding mandates for
// the signed octets. LowercaseURLEncoding applies to the signed octets
// on this side too, so a peer configured the same way verifies them.
func (s *Settings) signQuery(paramType queryParam, encodedMessage, relayState string) (string, error) {
	if s.SP.Key == nil {
		return "", ErrPrivateKeyNotFound.errorf("query signing requires an sp private key")
	}
	alg := s.Security.SignatureAlgorithm
	escape := url.QueryEscape
	if s.Security.LowercaseURLEncoding {
		escape = func(v string) string { return lowercaseEscapes(url.QueryEscape(v)) }
	}

	// query.Encode() sorts parameters alphabetically, which is not
	// what the binding signs. Build the string by hand.
	toSign := string(paramType) + "=" + escape(encodedMessage)
	if relayState != "" {
		toSign += "&RelayState=" + escape(relayState)
	}
	toSign += "&SigAlg=" + escape(alg)

	hashAlg, hashed, err := computeSignatureHash(alg, []byte(toSign))
	if err != nil {
		return "", err
	}
	sig, err := rsa.SignPKCS1v15(RandReader, s.SP.Key, hashAlg, hashed)
	if err != nil {
		return "", ErrInvalidSignature.wrap(err, "signing query")
	}

	return toSign + "&Signature=" + escape(base64.StdEncoding.EncodeToString(sig)), nil
}

// validateQuerySignature verifies the signature of a Redirect binding
// message. query holds the decoded parameters; rawQuery is the query
// string exactly as received. URL encoding in the wild is done
// uppercase or lowercase, RFC 3986 or not, so when
// RetrieveParametersFromServer is set the signed octets are taken from
// rawQuery instead of being re-encoded, which is what AD FS single
// logout needs.
func (s *Settings) validateQuerySignature(query url.Values, rawQuery string) error {
	sigB64 := query.Get(string(Signature))
	alg := query.Get(string(SigAlg))
	if sigB64 == "" || alg == "" {
		return ErrNoSignedMessage.errorf("query Signature or SigAlg not found")
	}

	if !knownSignatureMethods[alg] {
		return ErrSignatureMethodUnsupported.errorf("signature method %q", alg)
	}
	if s.Security.RejectDeprecatedAlgorithm && deprecatedSignatureMethods[alg] {
		return ErrInvalidSignatureAlgorithm.errorf("signature method %q is deprecated", alg)
	}

	var paramType queryParam
	switch {
	case query.Get(string(SAMLResponse)) != "":
		paramType = SAMLResponse
	case query.Get(string(SAMLRequest)) != "":
		paramType = SAMLRequest
	default:
		return ErrSAMLLogoutMessageNotFound.errorf("no SAMLRequest or SAMLResponse in query")
	}

	var signedData string
	if s.Security.RetrieveParametersFromServer && rawQuery != "" {
		// Already URL-encoded in rawQuery; reuse the sender's encoding.
		signedData = string(paramType) + "=" + getRawQueryParam(rawQuery, string(paramType))
		if relay := getRawQueryParam(rawQuery, string(RelayState)); relay != "" {
			signedData += "&RelayState=" + relay
		}
		signedData += "&SigAlg=" + getRawQueryParam(rawQuery, string(SigAlg))
	} else {
		escape := url.QueryEscape
		if s.Security.LowercaseURLEncoding {
			escape = func(v string) string { return lowercaseEscapes(url.QueryEscape(v)) }
		}
		signedData = string(paramType) + "=" + escape(query.Get(string(paramType)))
		if relay := query.Get(string(RelayState)); relay != "" {
			signedData += "&RelayState=" + escape(relay)
		}
		signedData += "&SigAlg=" + escape(alg)
	}

	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return ErrInvalidSignature.wrap(err, "decoding signature")
	}
	hashAlg, hashed, err := computeSignatureHash(alg, []byte(signedData))
	if err != nil {
		return err
	}

	if !s.canValidateSignatures() {
		return ErrCertNotFound.errorf("query signature validation requires a full idp certificate, not a fingerprint")
	}
	for _, cert := range s.IdP.Certificates {
		pubKey, ok := cert.PublicKey.(*rsa.PublicKey)
		if !ok {
			continue
		}
		if err := rsa.VerifyPKCS1v15(pubKey, hashAlg, hashed, sig); err == nil {
			return nil
		}
	}
	return ErrInvalidSignature.errorf("query signature does not verify against any idp certificate")
}

// computeSignatureHash computes the digest of data for the given
// signature method.
func computeSignatureHash(alg string, data []byte) (crypto.Hash, []byte, error) {
	switch alg {
	case SignatureMethodRSASHA1:
		h := sha1.Sum(data) // #nosec G401
		return crypto.SHA1, h[:], nil
	case SignatureMethodRSASHA256:
		h := sha256.Sum256(data)
		return crypto.SHA256, h[:], nil
	case SignatureMethodRSASHA384:
		h := sha512.Sum384(data)
		return crypto.SHA384, h[:], nil
	case SignatureMethodRSASHA512:
		h := sha512.Sum512(data)
		return crypto.SHA512, h[:], nil
	default:
		return 0, nil, ErrSignatureMethodUnsupported.errorf("signature method %q", alg)
	}
}

var percentEscapeRx = regexp.MustCompile(`%[0-9A-F]{2}`)

// lowercaseEscapes rewrites %XX escapes to %xx, matching what AD FS
// produces.
func lowercaseEscapes(s string) string {
	return percentEscapeRx.ReplaceAllStringFunc(s, strings.ToLower)
}

// getRawQueryParam returns the still-encoded value of name within
// rawQuery, preserving whatever URL encoding the sender used.
func getRawQueryParam(rawQuery, name string) string {
	for _, pair := range strings.Split(rawQuery, "&") {
		if strings.HasPrefix(pair, name+"=") {
			return strings.TrimPrefix(pair, name+"=")
		}
	}
	return ""
}

// buildRedirectURL attaches query to baseURL, which may already carry
// query parameters of its own.
func buildRedirectURL(baseURL, query string) (string, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", ErrRedirectInvalidURL.wrap(err, baseURL)
	}
	if parsed.RawQuery != "" {
		parsed.RawQuery += "&" + query
	} else {
		parsed.RawQuery = query
	}
	return parsed.String(), nil
}
