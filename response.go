package saml2

import (
	"strings"
	"sync"
	"time"

	"github.com/beevik/etree"
)

// Response is a saml2p:Response message, either parsed from the wire or
// under construction for sending.
//
// Received responses keep the document they were parsed from; the
// signer signed those octets, not this struct, so all signature work
// runs against the retained document. Outbound responses render their
// element on first use and the rendered form never changes afterwards.
type Response struct {
	ID                string
	InResponseTo      string
	IssueInstant      time.Time
	Destination       string
	Issuer            string
	Status            StatusCode
	StatusMessage     string
	SecondLevelStatus string

	// RelayState travels next to the message, outside the XML.
	RelayState string

	// SigningPair, when set on an outbound response, signs the
	// rendered element.
	SigningPair *CertificatePair

	// Identities are rendered into one assertion each on outbound
	// responses.
	Identities []*ClaimsIdentity

	doc *etree.Document // authoritative received form

	renderOnce sync.Once
	rendered   *etree.Element
	renderErr  error

	validateOnce sync.Once
	validated    []*ClaimsIdentity
	validateErr  error
}

// ParseResponse parses raw XML into a Response. Assertions are neither
// decrypted nor signature-checked here; that happens during Validate.
func ParseResponse(raw []byte, relayState string) (*Response, error) {
	doc, err := parseXMLDocument(raw)
	if err != nil {
		return nil, &ValidationError{
			Kind:       ErrXMLMalformed,
			PrivateErr: err,
			Response:   string(raw),
			Now:        TimeNow(),
		}
	}
	root := doc.Root()

	malformed := func(format string, args ...interface{}) error {
		rv := validationError(ErrXMLMalformed, format, args...)
		rv.Response = string(raw)
		return rv
	}

	if root.Tag != "Response" {
		return nil, malformed("expected a Response element, got <%s>", root.Tag)
	}
	if ok, err := elementInNamespace(root, ProtocolNamespace); err != nil {
		return nil, malformed("cannot resolve root namespace: %v", err)
	} else if !ok {
		return nil, malformed("Response element is not in the SAML protocol namespace")
	}
	if version := root.SelectAttrValue("Version", ""); version != "2.0" {
		return nil, malformed("expected SAML version 2.0, got %q", version)
	}

	rv := &Response{
		doc:          doc,
		RelayState:   relayState,
		InResponseTo: root.SelectAttrValue("InResponseTo", ""),
		Destination:  root.SelectAttrValue("Destination", ""),
	}

	rv.ID = root.SelectAttrValue("ID", "")
	if !IsValidID(rv.ID) {
		return nil, malformed("missing or invalid ID attribute %q", rv.ID)
	}
	instant := root.SelectAttrValue("IssueInstant", "")
	issueInstant, err := parseTime(instant)
	if err != nil {
		return nil, malformed("cannot parse IssueInstant %q: %v", instant, err)
	}
	rv.IssueInstant = issueInstant

	statusEl, err := findChild(root, ProtocolNamespace, "Status")
	if err != nil {
		return nil, malformed("%v", err)
	}
	if statusEl == nil {
		return nil, malformed("Response has no Status element")
	}
	codeEl, err := findChild(statusEl, ProtocolNamespace, "StatusCode")
	if err != nil {
		return nil, malformed("%v", err)
	}
	if codeEl == nil {
		return nil, malformed("Status has no StatusCode element")
	}
	uri := codeEl.SelectAttrValue("Value", "")
	status, ok := StatusCodeFromURI(uri)
	if !ok {
		return nil, malformed("unknown status code %q", uri)
	}
	rv.Status = status
	if secondEl, err := findChild(codeEl, ProtocolNamespace, "StatusCode"); err != nil {
		return nil, malformed("%v", err)
	} else if secondEl != nil {
		rv.SecondLevelStatus = secondEl.SelectAttrValue("Value", "")
	}
	if messageEl, err := findChild(statusEl, ProtocolNamespace, "StatusMessage"); err != nil {
		return nil, malformed("%v", err)
	} else if messageEl != nil {
		rv.StatusMessage = strings.TrimSpace(messageEl.Text())
	}

	if issuerEl, err := findChild(root, AssertionNamespace, "Issuer"); err != nil {
		return nil, malformed("%v", err)
	} else if issuerEl != nil {
		rv.Issuer = strings.TrimSpace(issuerEl.Text())
	}

	return rv, nil
}

// Element returns the authoritative XML form of the response. For a
// received response this is the parsed root; for an outbound response
// the element is rendered exactly once and reused afterwards.
func (r *Response) Element() (*etree.Element, error) {
	if r.doc != nil {
		return r.doc.Root(), nil
	}
	r.renderOnce.Do(func() {
		r.rendered, r.renderErr = r.render()
	})
	return r.rendered, r.renderErr
}

func (r *Response) render() (*etree.Element, error) {
	if r.ID == "" {
		r.ID = NewID()
	}
	r.IssueInstant = TimeNow()

	el := etree.NewElement("saml2p:Response")
	el.CreateAttr("xmlns:saml2p", ProtocolNamespace)
	el.CreateAttr("xmlns:saml2", AssertionNamespace)
	if r.Destination != "" {
		el.CreateAttr("Destination", r.Destination)
	}
	el.CreateAttr("ID", r.ID)
	el.CreateAttr("Version", "2.0")
	el.CreateAttr("IssueInstant", formatTime(r.IssueInstant))
	if r.InResponseTo != "" {
		el.CreateAttr("InResponseTo", r.InResponseTo)
	}

	issuerEl := el.CreateElement("saml2:Issuer")
	issuerEl.SetText(r.Issuer)

	statusEl := el.CreateElement("saml2p:Status")
	codeEl := statusEl.CreateElement("saml2p:StatusCode")
	codeEl.CreateAttr("Value", r.Status.URI())
	if r.SecondLevelStatus != "" {
		secondEl := codeEl.CreateElement("saml2p:StatusCode")
		secondEl.CreateAttr("Value", r.SecondLevelStatus)
	}
	if r.StatusMessage != "" {
		messageEl := statusEl.CreateElement("saml2p:StatusMessage")
		messageEl.SetText(r.StatusMessage)
	}

	for _, identity := range r.Identities {
		el.AddChild(identity.assertionElement(r.Issuer, r.InResponseTo, r.Destination))
	}

	if r.SigningPair != nil {
		ctx, err := r.SigningPair.signingContext("")
		if err != nil {
			return nil, err
		}
		signed, err := ctx.SignEnveloped(el)
		if err != nil {
			return nil, err
		}
		el = signed
	}
	return el, nil
}

// artifactResponsePayload returns the protocol message wrapped by an
// ArtifactResponse: its first child that is none of Issuer, Signature,
// Extensions or Status.
func artifactResponsePayload(el *etree.Element) (*etree.Element, error) {
	for _, child := range el.ChildElements() {
		switch child.Tag {
		case "Issuer", "Signature", "Extensions", "Status":
			continue
		}
		return child, nil
	}
	return nil, validationError(ErrXMLMalformed, "ArtifactResponse carries no message")
}
