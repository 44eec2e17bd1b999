package saml2

import (
	"time"

	"github.com/pkg/errors"
)

// ValidationKind discriminates the ways a response can fail validation.
type ValidationKind int

const (
	ErrNotSigned ValidationKind = iota
	ErrNoReference
	ErrMultipleReferences
	ErrReferenceMismatch
	ErrDisallowedTransform
	ErrSignatureInvalid
	ErrSha256NotRegistered
	ErrUnsignedAssertion
	ErrDecryptionFailed
	ErrNoDecryptionKey
	ErrUnsolicitedNotAllowed
	ErrReplayedOrUnknownRelayState
	ErrInResponseToMismatch
	ErrIssuerMismatch
	ErrUnsuccessfulStatus
	ErrAssertionReplayed
	ErrConditionsNotMet
	ErrArtifactResolutionFailed
	ErrXMLMalformed
)

var validationKindNames = map[ValidationKind]string{
	ErrNotSigned:                   "NotSigned",
	ErrNoReference:                 "NoReference",
	ErrMultipleReferences:          "MultipleReferences",
	ErrReferenceMismatch:           "ReferenceMismatch",
	ErrDisallowedTransform:         "DisallowedTransform",
	ErrSignatureInvalid:            "SignatureInvalid",
	ErrSha256NotRegistered:         "Sha256NotRegistered",
	ErrUnsignedAssertion:           "UnsignedAssertion",
	ErrDecryptionFailed:            "DecryptionFailed",
	ErrNoDecryptionKey:             "NoDecryptionKey",
	ErrUnsolicitedNotAllowed:       "UnsolicitedNotAllowed",
	ErrReplayedOrUnknownRelayState: "ReplayedOrUnknownRelayState",
	ErrInResponseToMismatch:        "InResponseToMismatch",
	ErrIssuerMismatch:              "IssuerMismatch",
	ErrUnsuccessfulStatus:          "UnsuccessfulStatus",
	ErrAssertionReplayed:           "AssertionReplayed",
	ErrConditionsNotMet:            "ConditionsNotMet",
	ErrArtifactResolutionFailed:    "ArtifactResolutionFailed",
	ErrXMLMalformed:                "XmlMalformed",
}

func (k ValidationKind) String() string {
	if name, ok := validationKindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// ValidationError is the error returned whenever a response fails
// validation. To discourage inadvertent disclosure of diagnostic detail
// to end users, Error() returns a static string; hosts log the struct.
type ValidationError struct {
	Kind       ValidationKind
	PrivateErr error

	// Response is the raw XML of the offending message, when available.
	Response string

	// Now is the time validation ran, for log correlation.
	Now time.Time

	// Status details, set when Kind is ErrUnsuccessfulStatus.
	Status            StatusCode
	StatusMessage     string
	SecondLevelStatus string
}

func (e *ValidationError) Error() string {
	return "Authentication failed"
}

func (e *ValidationError) Unwrap() error {
	return e.PrivateErr
}

func validationError(kind ValidationKind, format string, args ...interface{}) *ValidationError {
	return &ValidationError{
		Kind:       kind,
		PrivateErr: errors.Errorf(format, args...),
		Now:        TimeNow(),
	}
}

func validationErrorWrap(kind ValidationKind, cause error, message string) *ValidationError {
	return &ValidationError{
		Kind:       kind,
		PrivateErr: errors.Wrap(cause, message),
		Now:        TimeNow(),
	}
}

// KindOf returns the validation kind of err. The second return value is
// false when err is not a *ValidationError.
func KindOf(err error) (ValidationKind, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Kind, true
	}
	return 0, false
}
