package saml2

import (
	"crypto"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"

	"github.com/pkg/errors"
	dsig "github.com/russellhaering/goxmldsig"
)

// CertificatePair holds a certificate together with its private key.
// Pairs without private key material can still serve as verification
// candidates but cannot sign or decrypt.
type CertificatePair struct {
	// Key is the private key used to sign messages and to unwrap
	// encrypted assertion keys.
	Key crypto.PrivateKey

	// Certificate is the public part of Key.
	Certificate   *x509.Certificate
	Intermediates []*x509.Certificate
}

func (p CertificatePair) hasPrivateKey() bool {
	return p.Key != nil
}

func (p CertificatePair) rsaPrivateKey() (*rsa.PrivateKey, error) {
	key, ok := p.Key.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.Errorf("expected an RSA private key, got %T", p.Key)
	}
	return key, nil
}

// signingContext returns a goxmldsig signing context for producing
// enveloped signatures with this pair.
func (p CertificatePair) signingContext(sigAlg string) (*dsig.SigningContext, error) {
	if !p.hasPrivateKey() || p.Certificate == nil {
		return nil, errors.New("certificate pair has no private key material")
	}
	keyStore := dsig.TLSCertKeyStore(tls.Certificate{
		Certificate: [][]byte{p.Certificate.Raw},
		PrivateKey:  p.Key,
		Leaf:        p.Certificate,
	})
	ctx := dsig.NewDefaultSigningContext(keyStore)
	ctx.Canonicalizer = dsig.MakeC14N10ExclusiveCanonicalizerWithPrefixList("")
	if sigAlg == "" {
		sigAlg = dsig.RSASHA256SignatureMethod
	}
	if err := ctx.SetSignatureMethod(sigAlg); err != nil {
		return nil, errors.Wrap(err, "cannot configure signature method")
	}
	return ctx, nil
}
