package saml2

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/beevik/etree"
)

// ArtifactResolver dereferences artifacts over the SOAP 1.1 back
// channel (bindings 3.6.5). The zero value uses http.DefaultClient;
// give it a client with sane timeouts in production.
type ArtifactResolver struct {
	HTTPClient *http.Client
}

func (ar *ArtifactResolver) client() *http.Client {
	if ar.HTTPClient != nil {
		return ar.HTTPClient
	}
	return http.DefaultClient
}

// Resolve issues an ArtifactResolve for the artifact and returns the
// message element wrapped by the ArtifactResponse. The request is
// signed when the SP certificate pair holds a private key and is sent
// unsigned otherwise. The caller's context bounds the round trip.
func (ar *ArtifactResolver) Resolve(ctx context.Context, artifact string, idp *IdentityProvider, sp *SPOptions) (*etree.Element, error) {
	if idp.ArtifactResolutionEndpoint == "" {
		return nil, validationError(ErrArtifactResolutionFailed, "IdP %q has no artifact resolution endpoint", idp.EntityID)
	}

	resolveEl := etree.NewElement("saml2p:ArtifactResolve")
	resolveEl.CreateAttr("xmlns:saml2p", ProtocolNamespace)
	resolveEl.CreateAttr("xmlns:saml2", AssertionNamespace)
	resolveEl.CreateAttr("ID", NewID())
	resolveEl.CreateAttr("Version", "2.0")
	resolveEl.CreateAttr("IssueInstant", formatTime(TimeNow()))
	issuerEl := resolveEl.CreateElement("saml2:Issuer")
	issuerEl.SetText(sp.EntityID)
	artifactEl := resolveEl.CreateElement("saml2p:Artifact")
	artifactEl.SetText(artifact)

	if sp.CertificatePair.hasPrivateKey() {
		signingContext, err := sp.CertificatePair.signingContext("")
		if err != nil {
			return nil, validationErrorWrap(ErrArtifactResolutionFailed, err, "cannot sign ArtifactResolve")
		}
		signed, err := signingContext.SignEnveloped(resolveEl)
		if err != nil {
			return nil, validationErrorWrap(ErrArtifactResolutionFailed, err, "cannot sign ArtifactResolve")
		}
		resolveEl = signed
	}

	envelope := etree.NewDocument()
	envelopeEl := envelope.CreateElement("soapenv:Envelope")
	envelopeEl.CreateAttr("xmlns:soapenv", SOAPNamespace)
	bodyEl := envelopeEl.CreateElement("soapenv:Body")
	bodyEl.AddChild(resolveEl)

	payload, err := envelope.WriteToBytes()
	if err != nil {
		return nil, validationErrorWrap(ErrArtifactResolutionFailed, err, "cannot serialize SOAP envelope")
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, idp.ArtifactResolutionEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, validationErrorWrap(ErrArtifactResolutionFailed, err, "cannot build back-channel request")
	}
	request.Header.Set("Content-Type", "text/xml; charset=utf-8")
	request.Header.Set("SOAPAction", `""`)

	response, err := ar.client().Do(request)
	if err != nil {
		return nil, validationErrorWrap(ErrArtifactResolutionFailed, err, "back-channel request failed")
	}
	defer func() { _ = response.Body.Close() }()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, validationError(ErrArtifactResolutionFailed, "back channel answered %s", response.Status)
	}
	raw, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, validationErrorWrap(ErrArtifactResolutionFailed, err, "cannot read back-channel response")
	}
	doc, err := parseXMLDocument(raw)
	if err != nil {
		return nil, validationErrorWrap(ErrArtifactResolutionFailed, err, "back-channel response is not well-formed XML")
	}

	responseBodyEl := doc.FindElement("//Body")
	if responseBodyEl == nil {
		return nil, validationError(ErrArtifactResolutionFailed, "back-channel response has no SOAP body")
	}
	var artifactResponseEl *etree.Element
	for _, child := range responseBodyEl.ChildElements() {
		if child.Tag == "ArtifactResponse" {
			artifactResponseEl = child
			break
		}
	}
	if artifactResponseEl == nil {
		return nil, validationError(ErrArtifactResolutionFailed, "SOAP body carries no ArtifactResponse")
	}

	if statusEl, err := findChild(artifactResponseEl, ProtocolNamespace, "Status"); err == nil && statusEl != nil {
		if codeEl, err := findChild(statusEl, ProtocolNamespace, "StatusCode"); err == nil && codeEl != nil {
			if uri := codeEl.SelectAttrValue("Value", ""); uri != StatusSuccess.URI() {
				return nil, validationError(ErrArtifactResolutionFailed, "artifact resolution answered status %q", uri)
			}
		}
	}

	return artifactResponsePayload(artifactResponseEl)
}
