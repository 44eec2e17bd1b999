// Package xmlenc implements the subset of the XML Encryption syntax
// needed to decrypt SAML EncryptedAssertion payloads: RSA key
// transport plus AES/3DES block decryption. It deliberately offers no
// encryption surface.
package xmlenc

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"hash"
	"regexp"

	"github.com/beevik/etree"
	"github.com/pkg/errors"
	"golang.org/x/crypto/ripemd160"
)

// Decrypter decrypts the ciphertext carried by one encryption method.
type Decrypter interface {
	// Algorithm returns the xmlenc algorithm URI handled.
	Algorithm() string

	// Decrypt returns the plaintext of el using key. The key type
	// depends on the method: block ciphers take the []byte session
	// key, key transport takes the recipient's private key.
	Decrypt(key interface{}, el *etree.Element) ([]byte, error)
}

var decrypters = map[string]Decrypter{}

// RegisterDecrypter adds d to the algorithm dispatch table.
func RegisterDecrypter(d Decrypter) {
	decrypters[d.Algorithm()] = d
}

// ErrAlgorithmNotImplemented is returned when an EncryptionMethod names
// an algorithm outside the dispatch table.
type ErrAlgorithmNotImplemented string

func (e ErrAlgorithmNotImplemented) Error() string {
	return "algorithm is not implemented: " + string(e)
}

// ErrIncorrectTag describes an element that is not an encryption
// envelope at all. Decrypt does not check the element's tag and does not
// return this error; an element without an EncryptionMethod fails with a
// plain error.
type ErrIncorrectTag struct {
	Expected string
	Actual   string
}

func (e ErrIncorrectTag) Error() string {
	return "expected element " + e.Expected + ", got " + e.Actual
}

// Decrypt dispatches on el's EncryptionMethod and returns the
// plaintext.
func Decrypt(key interface{}, el *etree.Element) ([]byte, error) {
	methodEl := el.FindElement("./EncryptionMethod")
	if methodEl == nil {
		return nil, errors.New("element has no EncryptionMethod")
	}
	algorithm := methodEl.SelectAttrValue("Algorithm", "")
	decrypter, ok := decrypters[algorithm]
	if !ok {
		return nil, ErrAlgorithmNotImplemented(algorithm)
	}
	return decrypter.Decrypt(key, el)
}

var whitespaceRegexp = regexp.MustCompile(`\s+`)

// ciphertext returns the decoded CipherData/CipherValue of el.
func ciphertext(el *etree.Element) ([]byte, error) {
	valueEl := el.FindElement("./CipherData/CipherValue")
	if valueEl == nil {
		return nil, errors.New("element has no CipherData/CipherValue")
	}
	encoded := whitespaceRegexp.ReplaceAllString(valueEl.Text(), "")
	rv, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Wrap(err, "cannot decode CipherValue")
	}
	return rv, nil
}

// digestForURI maps digest method URIs to hash constructors.
func digestForURI(uri string) (func() hash.Hash, bool) {
	switch uri {
	case "http://www.w3.org/2000/09/xmldsig#sha1", "":
		return sha1.New, true
	case "http://www.w3.org/2001/04/xmlenc#sha256":
		return sha256.New, true
	case "http://www.w3.org/2001/04/xmlenc#sha512":
		return sha512.New, true
	case "http://www.w3.org/2001/04/xmlenc#ripemd160":
		return ripemd160.New, true
	}
	return nil, false
}
