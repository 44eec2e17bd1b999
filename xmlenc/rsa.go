package xmlenc

import (
	"crypto/rand"
	"crypto/rsa"

	"github.com/beevik/etree"
	"github.com/pkg/errors"
)

// rsaTransport unwraps EncryptedKey session keys with the recipient's
// RSA private key.
type rsaTransport struct {
	algorithm string
	oaep      bool
}

func (t rsaTransport) Algorithm() string { return t.algorithm }

func (t rsaTransport) Decrypt(key interface{}, el *etree.Element) ([]byte, error) {
	privateKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.Errorf("expected an *rsa.PrivateKey, got %T", key)
	}
	data, err := ciphertext(el)
	if err != nil {
		return nil, err
	}
	if !t.oaep {
		return rsa.DecryptPKCS1v15(rand.Reader, privateKey, data)
	}

	digestURI := ""
	if digestEl := el.FindElement("./EncryptionMethod/DigestMethod"); digestEl != nil {
		digestURI = digestEl.SelectAttrValue("Algorithm", "")
	}
	newHash, ok := digestForURI(digestURI)
	if !ok {
		return nil, ErrAlgorithmNotImplemented(digestURI)
	}
	return rsa.DecryptOAEP(newHash(), rand.Reader, privateKey, data, nil)
}

func init() {
	RegisterDecrypter(rsaTransport{
		algorithm: "http://www.w3.org/2001/04/xmlenc#rsa-oaep-mgf1p",
		oaep:      true,
	})
	RegisterDecrypter(rsaTransport{
		algorithm: "http://www.w3.org/2001/04/xmlenc#rsa-1_5",
		oaep:      false,
	})
}
