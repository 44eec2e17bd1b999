package saml2

import (
	"crypto/rand"
	"fmt"
	"io"
	"time"
	"unicode"

	"github.com/dchest/uniuri"
	dsig "github.com/russellhaering/goxmldsig"
)

// TimeNow is a function that returns the current time. The default
// value is time.Now in UTC, but it can be replaced for testing.
var TimeNow = func() time.Time { return time.Now().UTC() }

// Clock is used by the signature validation context. When nil the real
// clock is used.
var Clock *dsig.Clock

// RandReader is the io.Reader that produces cryptographically random
// bytes when they are needed to generate IDs. Defaults to
// crypto/rand.Reader, but it can be replaced for testing.
var RandReader io.Reader = rand.Reader

func randomBytes(n int) []byte {
	rv := make([]byte, n)
	if _, err := io.ReadFull(RandReader, rv); err != nil {
		panic(err)
	}
	return rv
}

// NewID returns a fresh message ID: a non-digit prefix followed by 128
// bits of random data in hex. The result satisfies the xsd:ID lexical
// rules, which an XML attribute of type ID must.
func NewID() string {
	return fmt.Sprintf("id-%x", randomBytes(16))
}

// NewRelayState returns an opaque correlation token suitable for use as
// a RelayState value. The value fits the 80 octet limit the binding
// specification imposes on relay state.
func NewRelayState() string {
	return uniuri.NewLen(42)
}

// IsValidID reports whether s is lexically a valid XML ID (an NCName).
func IsValidID(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' {
				return false
			}
			continue
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != '-' && r != '_' {
			return false
		}
	}
	return true
}

// timeFormat is the xsd:dateTime form SAML messages carry. Times are
// always serialized in UTC.
const timeFormat = "2006-01-02T15:04:05Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
