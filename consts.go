package saml2

// XML namespaces used by the protocol.
const (
	ProtocolNamespace  = "urn:oasis:names:tc:SAML:2.0:protocol"
	AssertionNamespace = "urn:oasis:names:tc:SAML:2.0:assertion"
	DsigNamespace      = "http://www.w3.org/2000/09/xmldsig#"
	XencNamespace      = "http://www.w3.org/2001/04/xmlenc#"
	SOAPNamespace      = "http://schemas.xmlsoap.org/soap/envelope/"
)

// Binding URIs from the SAML2 bindings specification.
const (
	HTTPRedirectBinding = "urn:oasis:names:tc:SAML:2.0:bindings:HTTP-Redirect"
	HTTPPostBinding     = "urn:oasis:names:tc:SAML:2.0:bindings:HTTP-POST"
	HTTPArtifactBinding = "urn:oasis:names:tc:SAML:2.0:bindings:HTTP-Artifact"
	SOAPBinding         = "urn:oasis:names:tc:SAML:2.0:bindings:SOAP"
)

// Query / form parameter names the bindings use on the wire.
const (
	SAMLRequestName  = "SAMLRequest"
	SAMLResponseName = "SAMLResponse"
)

// Signature algorithm URIs accepted for redirect binding query signing.
const (
	SigAlgRSASHA1   = "http://www.w3.org/2000/09/xmldsig#rsa-sha1"
	SigAlgRSASHA256 = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	SigAlgRSASHA512 = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha512"
)

// Subject confirmation method for the Web SSO bearer profile.
const BearerMethod = "urn:oasis:names:tc:SAML:2.0:cm:bearer"

// BindingType selects one of the supported transport bindings.
type BindingType int

const (
	HTTPRedirect BindingType = iota
	HTTPPost
	HTTPArtifact
)

func (t BindingType) String() string {
	switch t {
	case HTTPRedirect:
		return HTTPRedirectBinding
	case HTTPPost:
		return HTTPPostBinding
	case HTTPArtifact:
		return HTTPArtifactBinding
	}
	return "unknown"
}

// StatusCode enumerates the SAML2 status codes (core 3.2.2.2). The zero
// value is Success.
type StatusCode int

const (
	StatusSuccess StatusCode = iota
	StatusRequester
	StatusResponder
	StatusVersionMismatch
	StatusAuthnFailed
	StatusInvalidAttrNameOrValue
	StatusInvalidNameIDPolicy
	StatusNoAuthnContext
	StatusNoAvailableIDP
	StatusNoPassive
	StatusNoSupportedIDP
	StatusPartialLogout
	StatusProxyCountExceeded
	StatusRequestDenied
	StatusRequestUnsupported
	StatusRequestVersionDeprecated
	StatusRequestVersionTooHigh
	StatusRequestVersionTooLow
	StatusResourceNotRecognized
	StatusTooManyResponses
	StatusUnknownAttrProfile
	StatusUnknownPrincipal
	StatusUnsupportedBinding
)

const statusPrefix = "urn:oasis:names:tc:SAML:2.0:status:"

var statusNames = map[StatusCode]string{
	StatusSuccess:                  "Success",
	StatusRequester:                "Requester",
	StatusResponder:                "Responder",
	StatusVersionMismatch:          "VersionMismatch",
	StatusAuthnFailed:              "AuthnFailed",
	StatusInvalidAttrNameOrValue:   "InvalidAttrNameOrValue",
	StatusInvalidNameIDPolicy:      "InvalidNameIDPolicy",
	StatusNoAuthnContext:           "NoAuthnContext",
	StatusNoAvailableIDP:           "NoAvailableIDP",
	StatusNoPassive:                "NoPassive",
	StatusNoSupportedIDP:           "NoSupportedIDP",
	StatusPartialLogout:            "PartialLogout",
	StatusProxyCountExceeded:       "ProxyCountExceeded",
	StatusRequestDenied:            "RequestDenied",
	StatusRequestUnsupported:       "RequestUnsupported",
	StatusRequestVersionDeprecated: "RequestVersionDeprecated",
	StatusRequestVersionTooHigh:    "RequestVersionTooHigh",
	StatusRequestVersionTooLow:     "RequestVersionTooLow",
	StatusResourceNotRecognized:    "ResourceNotRecognized",
	StatusTooManyResponses:         "TooManyResponses",
	StatusUnknownAttrProfile:       "UnknownAttrProfile",
	StatusUnknownPrincipal:         "UnknownPrincipal",
	StatusUnsupportedBinding:       "UnsupportedBinding",
}

var statusCodesByURI = func() map[string]StatusCode {
	rv := make(map[string]StatusCode, len(statusNames))
	for code, name := range statusNames {
		rv[statusPrefix+name] = code
	}
	return rv
}()

func (c StatusCode) String() string {
	if name, ok := statusNames[c]; ok {
		return name
	}
	return "Unknown"
}

// URI returns the status URI bound to c.
func (c StatusCode) URI() string {
	return statusPrefix + c.String()
}

// StatusCodeFromURI maps a status URI back to its code. The second
// return value is false for URIs outside the table.
func StatusCodeFromURI(uri string) (StatusCode, bool) {
	code, ok := statusCodesByURI[uri]
	return code, ok
}
