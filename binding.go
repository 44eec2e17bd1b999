package saml2

import (
	"context"

	"github.com/beevik/etree"
)

// BindableMessage is a protocol message ready for transport.
type BindableMessage struct {
	// Element is the message XML.
	Element *etree.Element

	// Name is the wire parameter the message travels under:
	// SAMLRequestName or SAMLResponseName.
	Name string

	// Destination receives the message.
	Destination string

	// RelayState is echoed verbatim by the peer. At most 80 octets.
	RelayState string

	// Issuer is the sending entity, needed by the artifact binding to
	// derive the artifact source ID.
	Issuer string

	// SigningPair, when set, signs the transported message where the
	// binding supports it (the redirect binding signs the query
	// string; the other bindings expect the XML itself to be signed).
	SigningPair *CertificatePair

	// SigAlg overrides the query signature algorithm. Defaults to
	// RSA-SHA256.
	SigAlg string
}

// UnboundMessage is the transport-independent result of unbinding an
// HTTP request.
type UnboundMessage struct {
	// Data is the raw message XML, exactly as recovered.
	Data []byte

	// RelayState is the relay state that traveled with the message,
	// or empty.
	RelayState string

	// Binding identifies the transport the message arrived on.
	Binding BindingType
}

// Binding converts protocol messages to and from HTTP actions. The
// implementations are stateless and safely shared.
type Binding interface {
	// Type identifies the binding.
	Type() BindingType

	// Bind turns msg into the HTTP action that transports it.
	Bind(ctx context.Context, msg *BindableMessage) (*CommandResult, error)

	// CanUnbind reports whether r looks like a message on this
	// binding.
	CanUnbind(r *HTTPRequestData) bool

	// Unbind recovers the raw message from r. Bindings that verify
	// transport-level signatures or dereference artifacts consult
	// opts.
	Unbind(ctx context.Context, r *HTTPRequestData, opts *Options) (*UnboundMessage, error)
}

// maxRelayStateLength is the limit the bindings specification puts on
// relay state values.
const maxRelayStateLength = 80

var bindingInstances = map[BindingType]Binding{
	HTTPRedirect: redirectBinding{},
	HTTPPost:     postBinding{},
	HTTPArtifact: artifactBinding{},
}

// GetBinding returns the shared instance for the given type.
func GetBinding(t BindingType) Binding {
	return bindingInstances[t]
}

// BindingForRequest probes each binding and returns the first that can
// unbind r, or nil when no binding matches.
func BindingForRequest(r *HTTPRequestData) Binding {
	for _, t := range []BindingType{HTTPRedirect, HTTPPost, HTTPArtifact} {
		if binding := bindingInstances[t]; binding.CanUnbind(r) {
			return binding
		}
	}
	return nil
}

func checkRelayState(relayState string) error {
	if len(relayState) > maxRelayStateLength {
		return validationError(ErrXMLMalformed, "relay state exceeds %d octets", maxRelayStateLength)
	}
	return nil
}
