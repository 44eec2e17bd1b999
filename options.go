package saml2

import (
	"crypto/sha1"
	"crypto/x509"
)

// AudienceMode controls enforcement of AudienceRestriction conditions.
// The zero value enforces always; disabling the check must be spelled
// out in configuration.
type AudienceMode int

const (
	// AudienceAlways enforces audience restrictions on every
	// assertion.
	AudienceAlways AudienceMode = iota

	// AudienceIfBearer enforces audience restrictions only on
	// assertions confirmed with the bearer method.
	AudienceIfBearer

	// AudienceNever disables the audience check entirely.
	AudienceNever
)

// SPOptions is the service provider side of the configuration.
type SPOptions struct {
	// EntityID identifies this SP; it is also the audience value
	// assertions must name.
	EntityID string

	// CertificatePair signs outbound requests and responses.
	CertificatePair CertificatePair

	// DecryptionPairs are tried in order against encrypted
	// assertions. Multiple entries support key rollover.
	DecryptionPairs []CertificatePair

	// AudienceMode selects the audience enforcement policy.
	AudienceMode AudienceMode

	// AuthnNameIDFormat is the NameIDPolicy format requested on
	// outbound authentication requests.
	AuthnNameIDFormat NameIDFormat
}

// IdentityProvider is everything the core needs to know about one IdP.
// Instances are read-mostly; replace the whole value to roll keys, do
// not mutate a live one.
type IdentityProvider struct {
	EntityID string

	// SigningCerts are the candidate verification certificates.
	// Multiple entries support key rollover; verification succeeds
	// when any candidate validates a signature.
	SigningCerts []*x509.Certificate

	// AllowUnsolicitedAuthnResponse admits responses that carry no
	// InResponseTo (IdP-initiated sign-on).
	AllowUnsolicitedAuthnResponse bool

	// SSOURL is the IdP's single sign-on endpoint.
	SSOURL string

	// ArtifactResolutionEndpoint is the SOAP back-channel endpoint
	// for dereferencing artifacts issued by this IdP.
	ArtifactResolutionEndpoint string

	// EndpointIndex is carried in artifacts this IdP issues.
	EndpointIndex uint16
}

// sourceID is the 20 byte artifact source identifier of the IdP.
func (idp *IdentityProvider) sourceID() [20]byte {
	return sha1.Sum([]byte(idp.EntityID))
}

// Options carries the full configuration handed to the protocol core
// by its host.
type Options struct {
	SP SPOptions

	// IdentityProviders is keyed by entity ID.
	IdentityProviders map[string]*IdentityProvider

	// RequestStore correlates responses with pending requests.
	RequestStore RequestStore

	// ReplayStore remembers assertion IDs. Lazily created when nil.
	ReplayStore *AssertionReplayStore

	// Resolver dereferences artifacts. Lazily created when nil.
	Resolver *ArtifactResolver
}

// IdentityProvider returns the configured IdP with the given entity ID,
// or nil.
func (o *Options) IdentityProvider(entityID string) *IdentityProvider {
	return o.IdentityProviders[entityID]
}

func (o *Options) identityProviderBySourceID(sourceID [20]byte) *IdentityProvider {
	for _, idp := range o.IdentityProviders {
		if idp.sourceID() == sourceID {
			return idp
		}
	}
	return nil
}

func (o *Options) replayStore() *AssertionReplayStore {
	if o.ReplayStore == nil {
		o.ReplayStore = NewAssertionReplayStore()
	}
	return o.ReplayStore
}

func (o *Options) resolver() *ArtifactResolver {
	if o.Resolver == nil {
		o.Resolver = &ArtifactResolver{}
	}
	return o.Resolver
}
