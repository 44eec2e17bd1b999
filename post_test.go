package saml2

import (
	"context"
	"encoding/base64"
	"html"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hiddenFieldRegexp = regexp.MustCompile(`name="SAMLRequest" value="([^"]+)"`)

func TestPostBind(t *testing.T) {
	req := testAuthnRequest()
	result, err := GetBinding(HTTPPost).Bind(context.Background(), &BindableMessage{
		Element:     req.Element(),
		Name:        SAMLRequestName,
		Destination: req.Destination,
		RelayState:  "relay-1",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.HTTPStatus)
	assert.Equal(t, "text/html; charset=utf-8", result.ContentType)

	body := string(result.Body)
	assert.Contains(t, body, `action="https://idp.example.com/sso"`)
	assert.Contains(t, body, `name="RelayState" value="relay-1"`)
	assert.Contains(t, body, "document.forms[0].submit()")
	assert.Contains(t, body, `value="Continue"`, "the form must work without script")

	match := hiddenFieldRegexp.FindStringSubmatch(body)
	require.NotNil(t, match, "form must carry the message field")
	// The attribute value is HTML-escaped ('+' becomes "&#43;"); the
	// user agent unescapes it before submitting.
	raw, err := base64.StdEncoding.DecodeString(html.UnescapeString(match[1]))
	require.NoError(t, err)
	assert.Contains(t, string(raw), req.ID)
}

func TestPostUnbindRoundTrip(t *testing.T) {
	req := testAuthnRequest()
	result, err := GetBinding(HTTPPost).Bind(context.Background(), &BindableMessage{
		Element:     req.Element(),
		Name:        SAMLRequestName,
		Destination: req.Destination,
		RelayState:  "relay-2",
	})
	require.NoError(t, err)

	match := hiddenFieldRegexp.FindStringSubmatch(string(result.Body))
	require.NotNil(t, match)

	rd := &HTTPRequestData{
		Method: http.MethodPost,
		Form: url.Values{
			SAMLRequestName: []string{html.UnescapeString(match[1])},
			"RelayState":    []string{"relay-2"},
		},
	}
	binding := BindingForRequest(rd)
	require.NotNil(t, binding)
	assert.Equal(t, HTTPPost, binding.Type())

	unbound, err := binding.Unbind(context.Background(), rd, nil)
	require.NoError(t, err)
	assert.Equal(t, "relay-2", unbound.RelayState)
	assert.Contains(t, string(unbound.Data), req.ID)
}

func TestPostUnbindRejectsGarbage(t *testing.T) {
	rd := &HTTPRequestData{
		Method: http.MethodPost,
		Form:   url.Values{SAMLResponseName: []string{"!!not base64!!"}},
	}
	_, err := GetBinding(HTTPPost).Unbind(context.Background(), rd, nil)
	requireKind(t, err, ErrXMLMalformed)
}

func TestPostBindEscapesRelayState(t *testing.T) {
	req := testAuthnRequest()
	result, err := GetBinding(HTTPPost).Bind(context.Background(), &BindableMessage{
		Element:     req.Element(),
		Name:        SAMLRequestName,
		Destination: req.Destination,
		RelayState:  `"><script>alert(1)</script>`,
	})
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(result.Body), "<script>alert"), "relay state must be escaped into the form")
}

func TestBindingForRequestNoMatch(t *testing.T) {
	rd := &HTTPRequestData{Method: http.MethodGet, Query: url.Values{}}
	assert.Nil(t, BindingForRequest(rd))
}
