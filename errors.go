package saml

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind is a stable symbolic label describing why a SAML message
// was rejected. Kinds are the unit of programmatic error handling:
// callers match on the kind, the Detail string is for humans.
type ErrorKind string

// Error kinds raised by the builders, validators and the Auth
// orchestrator.
const (
	ErrSettingsInvalid           ErrorKind = "SettingsInvalid"
	ErrCertNotFound              ErrorKind = "CertNotFound"
	ErrPrivateKeyNotFound        ErrorKind = "PrivateKeyNotFound"
	ErrRedirectInvalidURL        ErrorKind = "RedirectInvalidUrl"
	ErrSAMLResponseNotFound      ErrorKind = "SamlResponseNotFound"
	ErrSAMLLogoutMessageNotFound ErrorKind = "SamlLogoutMessageNotFound"
	ErrSingleLogoutNotSupported  ErrorKind = "SingleLogoutNotSupported"
	ErrUnsupportedBinding        ErrorKind = "UnsupportedBinding"

	ErrInvalidXML                   ErrorKind = "InvalidXml"
	ErrSchemaViolation              ErrorKind = "SchemaViolation"
	ErrWrongVersion                 ErrorKind = "WrongVersion"
	ErrMissingID                    ErrorKind = "MissingId"
	ErrStatusCodeNotFound           ErrorKind = "StatusCodeNotFound"
	ErrResponseStatusError          ErrorKind = "ResponseStatusError"
	ErrInvalidIssuer                ErrorKind = "InvalidIssuer"
	ErrInvalidDestination           ErrorKind = "InvalidDestination"
	ErrInvalidInResponseTo          ErrorKind = "InvalidInResponseTo"
	ErrInvalidAudience              ErrorKind = "InvalidAudience"
	ErrAssertionExpired             ErrorKind = "AssertionExpired"
	ErrAssertionTooEarly            ErrorKind = "AssertionTooEarly"
	ErrResponseExpired              ErrorKind = "ResponseExpired"
	ErrNoAssertion                  ErrorKind = "NoAssertion"
	ErrEncryptedAssertionNotAllowed ErrorKind = "EncryptedAssertionNotAllowed"
	ErrAssertionNotEncrypted        ErrorKind = "AssertionNotEncrypted"
	ErrNameIDNotFound               ErrorKind = "NameIdNotFound"
	ErrNameIDNotEncrypted           ErrorKind = "NameIdNotEncrypted"
	ErrEmptyNameID                  ErrorKind = "EmptyNameId"
	ErrSPNameQualifierMismatch      ErrorKind = "SPNameQualifierMismatch"
	ErrNoAuthnStatement             ErrorKind = "NoAuthnStatement"
	ErrDuplicatedAttributeName      ErrorKind = "DuplicatedAttributeNameFound"
	ErrWrongSubjectConfirmation     ErrorKind = "WrongSubjectConfirmation"
	ErrSessionExpired               ErrorKind = "SessionExpired"
	ErrSessionDeleteFailed          ErrorKind = "SessionDeleteFailed"

	ErrNoSignature                ErrorKind = "NoSignature"
	ErrNoSignedMessage            ErrorKind = "NoSignedMessage"
	ErrNoSignedAssertion          ErrorKind = "NoSignedAssertion"
	ErrNoSignedElement            ErrorKind = "NoSignedElement"
	ErrDuplicatedSignedElement    ErrorKind = "DuplicatedSignedElement"
	ErrInvalidSignature           ErrorKind = "InvalidSignature"
	ErrSignatureMethodUnsupported ErrorKind = "SignatureMethodUnsupported"
	ErrInvalidSignatureAlgorithm  ErrorKind = "InvalidSignatureAlgorithm"
	ErrDuplicatedID               ErrorKind = "DuplicatedId"
	ErrInvalidSignedElement       ErrorKind = "InvalidSignedElement"
	ErrEncryptionError            ErrorKind = "EncryptionError"
	ErrDecryptionError            ErrorKind = "DecryptionError"
)

// Error is the error type produced by this package. Kind is stable
// across releases; Detail and the wrapped cause are not.
type Error struct {
	Kind   ErrorKind
	Detail string
	cause  error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Detail
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// errorf creates an *Error with a formatted detail string.
func (k ErrorKind) errorf(format string, args ...interface{}) *Error {
	return &Error{Kind: k, Detail: fmt.Sprintf(format, args...)}
}

// wrap creates an *Error recording err as the cause. The cause keeps a
// stack trace so that diagnostics can point at the failing validation
// step.
func (k ErrorKind) wrap(err error, detail string) *Error {
	return &Error{Kind: k, Detail: detail, cause: errors.WithStack(err)}
}

// KindOf returns the kind of err if it is an *Error, or "" otherwise.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
