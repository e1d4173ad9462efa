package xmlenc

import "fmt"

// ErrAlgorithmNotImplemented is returned when encryption names an
// algorithm this package does not know.
type ErrAlgorithmNotImplemented string

func (e ErrAlgorithmNotImplemented) Error() string {
	return "algorithm is not implemented: " + string(e)
}

// ErrCannotFindRequiredElement is returned when a ciphertext document
// is missing a structural element.
type ErrCannotFindRequiredElement string

func (e ErrCannotFindRequiredElement) Error() string {
	return "cannot find required element: " + string(e)
}

// ErrIncorrectKeyLength is returned when the resolved key does not
// match the cipher's key size.
type ErrIncorrectKeyLength int

func (e ErrIncorrectKeyLength) Error() string {
	return fmt.Sprintf("expected key of length %d bytes", int(e))
}

// ErrIncorrectTag is returned when an element has an unexpected tag.
type ErrIncorrectTag struct {
	Expected string
	Actual   string
}

func (e ErrIncorrectTag) Error() string {
	return fmt.Sprintf("expected tag %s, found %s", e.Expected, e.Actual)
}
