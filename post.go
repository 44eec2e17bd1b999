package saml2

import (
	"bytes"
	"context"
	"encoding/base64"
	"html/template"
	"net/http"
)

// postBinding implements the HTTP-POST binding: the message is
// base64-encoded into a hidden field of a self-submitting form.
type postBinding struct{}

func (postBinding) Type() BindingType { return HTTPPost }

// The form auto-submits via the inline script; the Continue button
// keeps the page usable when scripting is off.
var postFormTemplate = template.Must(template.New("saml-post-form").Parse(`<!DOCTYPE html>
<html>
<body onload="document.forms[0].submit()">
<form method="POST" action="{{.Destination}}">
<input type="hidden" name="{{.Name}}" value="{{.Value}}"/>
{{if .RelayState}}<input type="hidden" name="RelayState" value="{{.RelayState}}"/>{{end}}
<noscript><input type="submit" value="Continue"/></noscript>
</form>
</body>
</html>
`))

func (postBinding) Bind(_ context.Context, msg *BindableMessage) (*CommandResult, error) {
	if err := checkRelayState(msg.RelayState); err != nil {
		return nil, err
	}
	raw, err := serializeElement(msg.Element)
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	err = postFormTemplate.Execute(&body, struct {
		Destination string
		Name        string
		Value       string
		RelayState  string
	}{
		Destination: msg.Destination,
		Name:        msg.Name,
		Value:       base64.StdEncoding.EncodeToString(raw),
		RelayState:  msg.RelayState,
	})
	if err != nil {
		return nil, err
	}

	return &CommandResult{
		HTTPStatus:  http.StatusOK,
		ContentType: "text/html; charset=utf-8",
		Body:        body.Bytes(),
	}, nil
}

func (postBinding) CanUnbind(r *HTTPRequestData) bool {
	if r.Method != http.MethodPost {
		return false
	}
	return r.Form.Get(SAMLRequestName) != "" || r.Form.Get(SAMLResponseName) != ""
}

func (postBinding) Unbind(_ context.Context, r *HTTPRequestData, _ *Options) (*UnboundMessage, error) {
	encoded := r.Form.Get(SAMLResponseName)
	if encoded == "" {
		encoded = r.Form.Get(SAMLRequestName)
	}
	if encoded == "" {
		return nil, validationError(ErrXMLMalformed, "form carries no SAML message field")
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, validationErrorWrap(ErrXMLMalformed, err, "cannot decode message field")
	}
	if err := checkXMLRoundTrip(raw); err != nil {
		return nil, validationErrorWrap(ErrXMLMalformed, err, "message failed round-trip validation")
	}
	return &UnboundMessage{
		Data:       raw,
		RelayState: r.Form.Get("RelayState"),
		Binding:    HTTPPost,
	}, nil
}
