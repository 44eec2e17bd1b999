package saml2

import (
	"context"
	"net/url"
	"time"

	"github.com/beevik/etree"
)

// AuthnRequest is an outbound authentication request.
type AuthnRequest struct {
	ID                          string
	IssueInstant                time.Time
	Destination                 string
	Issuer                      string
	AssertionConsumerServiceURL string
	ProtocolBinding             string
	NameIDFormat                NameIDFormat
	ForceAuthn                  *bool
	AllowCreate                 bool
}

// MakeAuthnRequest builds a request for the given IdP, records its
// correlation state in the store and returns the relay state that must
// travel with it.
func MakeAuthnRequest(opts *Options, idp *IdentityProvider, acsURL, returnURL string) (*AuthnRequest, string, error) {
	req := &AuthnRequest{
		ID:                          NewID(),
		IssueInstant:                TimeNow(),
		Destination:                 idp.SSOURL,
		Issuer:                      opts.SP.EntityID,
		AssertionConsumerServiceURL: acsURL,
		ProtocolBinding:             HTTPPostBinding,
		NameIDFormat:                opts.SP.AuthnNameIDFormat,
		AllowCreate:                 true,
	}
	relayState := NewRelayState()
	err := opts.RequestStore.Add(relayState, &StoredRequestState{
		IDP:       idp.EntityID,
		MessageID: req.ID,
		ReturnURL: returnURL,
	})
	if err != nil {
		return nil, "", err
	}
	return req, relayState, nil
}

// Element renders the request as saml2p:AuthnRequest.
func (req *AuthnRequest) Element() *etree.Element {
	el := etree.NewElement("saml2p:AuthnRequest")
	el.CreateAttr("xmlns:saml2p", ProtocolNamespace)
	el.CreateAttr("xmlns:saml2", AssertionNamespace)
	el.CreateAttr("ID", req.ID)
	el.CreateAttr("Version", "2.0")
	el.CreateAttr("IssueInstant", formatTime(req.IssueInstant))
	if req.Destination != "" {
		el.CreateAttr("Destination", req.Destination)
	}
	if req.AssertionConsumerServiceURL != "" {
		el.CreateAttr("AssertionConsumerServiceURL", req.AssertionConsumerServiceURL)
	}
	if req.ProtocolBinding != "" {
		el.CreateAttr("ProtocolBinding", req.ProtocolBinding)
	}
	if req.ForceAuthn != nil && *req.ForceAuthn {
		el.CreateAttr("ForceAuthn", "true")
	}

	issuerEl := el.CreateElement("saml2:Issuer")
	issuerEl.CreateAttr("Format", "urn:oasis:names:tc:SAML:2.0:nameid-format:entity")
	issuerEl.SetText(req.Issuer)

	policyEl := el.CreateElement("saml2p:NameIDPolicy")
	if req.AllowCreate {
		policyEl.CreateAttr("AllowCreate", "true")
	}
	switch req.NameIDFormat {
	case "":
		// To keep older IdPs happy, request "transient" if unset.
		policyEl.CreateAttr("Format", string(TransientNameIDFormat))
	case UnspecifiedNameIDFormat:
		// The spec defines an empty value as "unspecified", so
		// don't set one.
	default:
		policyEl.CreateAttr("Format", string(req.NameIDFormat))
	}
	return el
}

// Redirect binds the request onto the HTTP-Redirect binding and
// returns the URL to send the user agent to. signWith may be nil for
// an unsigned query.
func (req *AuthnRequest) Redirect(relayState string, signWith *CertificatePair) (*url.URL, error) {
	result, err := GetBinding(HTTPRedirect).Bind(context.Background(), &BindableMessage{
		Element:     req.Element(),
		Name:        SAMLRequestName,
		Destination: req.Destination,
		RelayState:  relayState,
		Issuer:      req.Issuer,
		SigningPair: signWith,
	})
	if err != nil {
		return nil, err
	}
	return url.Parse(result.Location)
}

// Post binds the request onto the HTTP-POST binding and returns the
// HTML document to serve to the user agent.
func (req *AuthnRequest) Post(relayState string) ([]byte, error) {
	result, err := GetBinding(HTTPPost).Bind(context.Background(), &BindableMessage{
		Element:     req.Element(),
		Name:        SAMLRequestName,
		Destination: req.Destination,
		RelayState:  relayState,
		Issuer:      req.Issuer,
	})
	if err != nil {
		return nil, err
	}
	return result.Body, nil
}
