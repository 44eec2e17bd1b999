package saml2

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
)

// artifactTypeCode is the only artifact format the Web SSO profile
// defines (bindings 3.6.4).
const artifactTypeCode = 0x0004

// Artifact is the decoded form of a type 0x0004 SAML artifact.
type Artifact struct {
	TypeCode      uint16
	EndpointIndex uint16
	SourceID      [20]byte
	MessageHandle [20]byte
}

// NewArtifact mints an artifact for the given issuer. The source ID is
// the SHA-1 of the issuer entity ID and the message handle is random.
func NewArtifact(issuerEntityID string, endpointIndex uint16) Artifact {
	rv := Artifact{
		TypeCode:      artifactTypeCode,
		EndpointIndex: endpointIndex,
		SourceID:      sha1.Sum([]byte(issuerEntityID)),
	}
	copy(rv.MessageHandle[:], randomBytes(20))
	return rv
}

// Encode returns the base64 wire form of the artifact.
func (a Artifact) Encode() string {
	raw := make([]byte, 44)
	binary.BigEndian.PutUint16(raw[0:2], a.TypeCode)
	binary.BigEndian.PutUint16(raw[2:4], a.EndpointIndex)
	copy(raw[4:24], a.SourceID[:])
	copy(raw[24:44], a.MessageHandle[:])
	return base64.StdEncoding.EncodeToString(raw)
}

// ParseArtifact decodes the base64 wire form of an artifact.
func ParseArtifact(encoded string) (*Artifact, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Wrap(err, "cannot decode artifact")
	}
	if len(raw) != 44 {
		return nil, errors.Errorf("expected a 44 byte artifact, got %d bytes", len(raw))
	}
	rv := &Artifact{
		TypeCode:      binary.BigEndian.Uint16(raw[0:2]),
		EndpointIndex: binary.BigEndian.Uint16(raw[2:4]),
	}
	if rv.TypeCode != artifactTypeCode {
		return nil, errors.Errorf("unsupported artifact type code %#04x", rv.TypeCode)
	}
	copy(rv.SourceID[:], raw[4:24])
	copy(rv.MessageHandle[:], raw[24:44])
	return rv, nil
}

// artifactBinding implements the HTTP-Artifact binding. Bind emits a
// redirect carrying a freshly minted artifact; Unbind dereferences the
// artifact over the SOAP back channel.
type artifactBinding struct{}

func (artifactBinding) Type() BindingType { return HTTPArtifact }

func (artifactBinding) Bind(_ context.Context, msg *BindableMessage) (*CommandResult, error) {
	if err := checkRelayState(msg.RelayState); err != nil {
		return nil, err
	}
	if msg.Issuer == "" {
		return nil, errors.New("artifact binding requires the message issuer")
	}
	artifact := NewArtifact(msg.Issuer, 0)

	dest, err := url.Parse(msg.Destination)
	if err != nil {
		return nil, errors.Wrap(err, "invalid destination URL")
	}
	query := url.Values{}
	query.Set("SAMLart", artifact.Encode())
	if msg.RelayState != "" {
		query.Set("RelayState", msg.RelayState)
	}
	dest.RawQuery = query.Encode()

	return &CommandResult{
		HTTPStatus: http.StatusFound,
		Location:   dest.String(),
	}, nil
}

func (artifactBinding) CanUnbind(r *HTTPRequestData) bool {
	if r.Query.Get("SAMLart") != "" {
		return true
	}
	return r.Method == http.MethodPost && r.Form.Get("SAMLart") != ""
}

func (artifactBinding) Unbind(ctx context.Context, r *HTTPRequestData, opts *Options) (*UnboundMessage, error) {
	encoded := r.Query.Get("SAMLart")
	relayState := r.Query.Get("RelayState")
	if encoded == "" {
		encoded = r.Form.Get("SAMLart")
		relayState = r.Form.Get("RelayState")
	}
	if encoded == "" {
		return nil, validationError(ErrXMLMalformed, "request carries no SAMLart parameter")
	}
	artifact, err := ParseArtifact(encoded)
	if err != nil {
		return nil, validationErrorWrap(ErrXMLMalformed, err, "cannot parse artifact")
	}
	if opts == nil {
		return nil, validationError(ErrArtifactResolutionFailed, "artifact resolution requires configuration")
	}
	idp := opts.identityProviderBySourceID(artifact.SourceID)
	if idp == nil {
		return nil, validationError(ErrArtifactResolutionFailed, "no configured IdP matches the artifact source ID")
	}

	messageEl, err := opts.resolver().Resolve(ctx, encoded, idp, &opts.SP)
	if err != nil {
		return nil, err
	}
	messageEl, err = detachElement(messageEl)
	if err != nil {
		return nil, validationErrorWrap(ErrArtifactResolutionFailed, err, "cannot detach resolved message")
	}
	raw, err := serializeElement(messageEl)
	if err != nil {
		return nil, validationErrorWrap(ErrArtifactResolutionFailed, err, "cannot serialize resolved message")
	}
	return &UnboundMessage{
		Data:       raw,
		RelayState: relayState,
		Binding:    HTTPArtifact,
	}, nil
}
