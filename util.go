package saml

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
)

// TimeNow is a function that returns the current time. The default
// value is time.Now, but it can be replaced for testing.
var TimeNow = func() time.Time { return time.Now().UTC() }

// Clock is assigned to dsig validation contexts if it is not nil,
// otherwise the default clock is used.
var Clock *dsig.Clock

// RandReader is the io.Reader that produces cryptographically random
// bytes when they are needed by the library. The default value is
// rand.Reader, but it can be replaced for testing.
var RandReader = rand.Reader

func randomBytes(n int) []byte {
	rv := make([]byte, n)
	if _, err := RandReader.Read(rv); err != nil {
		panic(err)
	}
	return rv
}

// newMessageID produces a message identifier with at least 128 bits of
// entropy. The prefix keeps the value a valid xsd:ID, which must not
// start with a digit.
func newMessageID() string {
	return fmt.Sprintf("id-%x", randomBytes(20))
}

// elementString serializes an element, for diagnostics.
func elementString(el *etree.Element) string {
	doc := etree.NewDocument()
	doc.SetRoot(el)
	str, err := doc.WriteToString()
	if err != nil {
		return ""
	}
	return str
}

// destinationMatches compares a received Destination attribute with
// one of our endpoints, tolerating a trailing slash difference.
func destinationMatches(got, want string) bool {
	if got == want {
		return true
	}
	return strings.TrimSuffix(got, "/") == strings.TrimSuffix(want, "/")
}
