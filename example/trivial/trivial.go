package main

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"log"
	"net/http"
	"os"

	"github.com/zenazn/goji"

	saml2 "github.com/ventrix-id/saml2"
)

// A minimal service provider: /login starts the flow at the IdP,
// /saml/acs consumes the response.

var opts *saml2.Options

func login(w http.ResponseWriter, r *http.Request) {
	idp := opts.IdentityProvider("https://idp.example.com/metadata")
	req, relayState, err := saml2.MakeAuthnRequest(opts, idp, "https://localhost:8000/saml/acs", r.URL.Query().Get("return"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	location, err := req.Redirect(relayState, &opts.SP.CertificatePair)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, location.String(), http.StatusFound)
}

func acs(w http.ResponseWriter, r *http.Request) {
	rd, err := saml2.RequestDataFromHTTP(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	binding := saml2.BindingForRequest(rd)
	if binding == nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	unbound, err := binding.Unbind(r.Context(), rd, opts)
	if err != nil {
		log.Printf("unbind failed: %+v", err)
		http.Error(w, http.StatusText(saml2.HTTPStatusFor(err)), saml2.HTTPStatusFor(err))
		return
	}
	resp, err := saml2.ParseResponse(unbound.Data, unbound.RelayState)
	if err != nil {
		log.Printf("parse failed: %+v", err)
		http.Error(w, http.StatusText(saml2.HTTPStatusFor(err)), saml2.HTTPStatusFor(err))
		return
	}
	identities, err := resp.Validate(opts)
	if err != nil {
		log.Printf("validation failed: %+v", err)
		http.Error(w, http.StatusText(saml2.HTTPStatusFor(err)), saml2.HTTPStatusFor(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "   ")
	_ = encoder.Encode(identities)
}

func main() {
	keyPair, err := tls.LoadX509KeyPair("myservice.cert", "myservice.key")
	if err != nil {
		panic(err)
	}
	keyPair.Leaf, err = x509.ParseCertificate(keyPair.Certificate[0])
	if err != nil {
		panic(err)
	}

	idpCertPEM, err := os.ReadFile("idp.cert")
	if err != nil {
		panic(err)
	}
	block, _ := pem.Decode(idpCertPEM)
	if block == nil {
		panic("idp.cert is not PEM")
	}
	idpLeaf, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		panic(err)
	}

	opts = &saml2.Options{
		SP: saml2.SPOptions{
			EntityID: "https://localhost:8000/saml/metadata",
			CertificatePair: saml2.CertificatePair{
				Key:         keyPair.PrivateKey,
				Certificate: keyPair.Leaf,
			},
			DecryptionPairs: []saml2.CertificatePair{{
				Key:         keyPair.PrivateKey,
				Certificate: keyPair.Leaf,
			}},
		},
		IdentityProviders: map[string]*saml2.IdentityProvider{
			"https://idp.example.com/metadata": {
				EntityID:     "https://idp.example.com/metadata",
				SigningCerts: []*x509.Certificate{idpLeaf},
				SSOURL:       "https://idp.example.com/sso",
			},
		},
		RequestStore: saml2.NewMemoryRequestStore(),
	}

	goji.Get("/login", login)
	goji.Post("/saml/acs", acs)
	goji.Get("/saml/acs", acs)
	goji.Serve()
}
