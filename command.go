package saml2

import (
	"io"
	"net/http"
	"net/url"
)

// HTTPRequestData is the transport-neutral view of an inbound HTTP
// request. Hosts construct it from whatever server stack they run.
type HTTPRequestData struct {
	Method string
	URL    *url.URL
	Query  url.Values
	Form   url.Values
	Body   []byte
}

// RequestDataFromHTTP captures r into an HTTPRequestData. The request
// body is consumed.
func RequestDataFromHTTP(r *http.Request) (*HTTPRequestData, error) {
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
	}
	return &HTTPRequestData{
		Method: r.Method,
		URL:    r.URL,
		Query:  r.URL.Query(),
		Form:   r.PostForm,
		Body:   body,
	}, nil
}

// CommandResult is the HTTP action the host should enact on behalf of
// the core: a redirect, a rendered form, or an error page.
type CommandResult struct {
	HTTPStatus  int
	Location    string
	ContentType string
	Body        []byte
	Headers     http.Header
	Cookies     []*http.Cookie
}

// Apply writes the result to w.
func (cr *CommandResult) Apply(w http.ResponseWriter) {
	for name, values := range cr.Headers {
		for _, value := range values {
			w.Header().Add(name, value)
		}
	}
	for _, cookie := range cr.Cookies {
		http.SetCookie(w, &http.Cookie{
			Name:     cookie.Name,
			Value:    cookie.Value,
			Path:     cookie.Path,
			MaxAge:   cookie.MaxAge,
			Secure:   cookie.Secure,
			HttpOnly: cookie.HttpOnly,
		})
	}
	if cr.ContentType != "" {
		w.Header().Set("Content-Type", cr.ContentType)
	}
	if cr.Location != "" {
		w.Header().Set("Location", cr.Location)
	}
	status := cr.HTTPStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(cr.Body) > 0 {
		_, _ = w.Write(cr.Body)
	}
}

// HTTPStatusFor maps a validation failure to the status code the host
// should answer with. Validation failures are the client's fault,
// back-channel failures are not, and the mapping never exposes detail
// text to the user agent.
func HTTPStatusFor(err error) int {
	kind, ok := KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case ErrXMLMalformed:
		return http.StatusBadRequest
	case ErrArtifactResolutionFailed, ErrSha256NotRegistered:
		return http.StatusBadGateway
	default:
		return http.StatusForbidden
	}
}
