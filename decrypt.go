package saml2

import (
	"github.com/beevik/etree"
	"github.com/pkg/errors"

	"github.com/ventrix-id/saml2/xmlenc"
)

// collectAssertions returns the assertion elements of a response,
// decrypting every EncryptedAssertion. Plaintext assertions come first
// and decrypted ones follow; each group keeps document order.
//
// One key policy applies to the whole response: the first configured
// key that unwraps an encrypted assertion must unwrap all of them. A
// key that fails partway through means either tampering or a broken
// issuer, and the response is rejected rather than patched together
// from two keys.
func collectAssertions(responseEl *etree.Element, keys []CertificatePair) ([]*etree.Element, error) {
	var rv []*etree.Element
	var encrypted []*etree.Element

	for _, child := range responseEl.ChildElements() {
		switch child.Tag {
		case "Assertion":
			if ok, err := elementInNamespace(child, AssertionNamespace); err != nil {
				return nil, validationErrorWrap(ErrXMLMalformed, err, "cannot inspect response")
			} else if ok {
				rv = append(rv, child)
			}
		case "EncryptedAssertion":
			if ok, err := elementInNamespace(child, AssertionNamespace); err != nil {
				return nil, validationErrorWrap(ErrXMLMalformed, err, "cannot inspect response")
			} else if ok {
				encrypted = append(encrypted, child)
			}
		}
	}

	if len(encrypted) == 0 {
		return rv, nil
	}

	var usable []CertificatePair
	for _, pair := range keys {
		if pair.hasPrivateKey() {
			usable = append(usable, pair)
		}
	}
	if len(usable) == 0 {
		return nil, validationError(ErrNoDecryptionKey, "response carries %d encrypted assertions but no decryption key is configured", len(encrypted))
	}

	var lastErr error
	for _, pair := range usable {
		decrypted, err := decryptAll(encrypted, pair)
		if err != nil {
			if errors.As(err, new(*ValidationError)) {
				// The key works but the response is inconsistent.
				return nil, err
			}
			lastErr = err
			continue
		}
		return append(rv, decrypted...), nil
	}
	return nil, validationErrorWrap(ErrDecryptionFailed, lastErr, "no configured key decrypts the encrypted assertions")
}

// decryptAll unwraps every EncryptedAssertion with a single key. A
// plain error means the key does not fit and the caller may try the
// next one; a *ValidationError means the response itself is bad.
func decryptAll(encrypted []*etree.Element, pair CertificatePair) ([]*etree.Element, error) {
	var rv []*etree.Element
	for i, encryptedEl := range encrypted {
		plaintext, err := decryptOne(encryptedEl, pair)
		if err != nil {
			if i > 0 {
				// The key already proved itself on an earlier
				// assertion of this response.
				return nil, validationErrorWrap(ErrDecryptionFailed, err, "key decrypts some assertions of the response but not all")
			}
			return nil, err
		}
		doc := etree.NewDocument()
		if err := doc.ReadFromBytes(plaintext); err != nil {
			return nil, validationErrorWrap(ErrDecryptionFailed, err, "decrypted assertion is not well-formed XML")
		}
		root := doc.Root()
		if root == nil || root.Tag != "Assertion" {
			return nil, validationError(ErrDecryptionFailed, "decrypted payload is not an Assertion")
		}
		rv = append(rv, root)
	}
	return rv, nil
}

func decryptOne(encryptedEl *etree.Element, pair CertificatePair) ([]byte, error) {
	dataEl := encryptedEl.FindElement("./EncryptedData")
	if dataEl == nil {
		return nil, validationError(ErrXMLMalformed, "EncryptedAssertion has no EncryptedData")
	}

	key := pair.Key
	if keyEl := encryptedEl.FindElement(".//EncryptedKey"); keyEl != nil {
		privateKey, err := pair.rsaPrivateKey()
		if err != nil {
			return nil, err
		}
		sessionKey, err := xmlenc.Decrypt(privateKey, keyEl)
		if err != nil {
			return nil, errors.Wrap(err, "cannot unwrap session key")
		}
		return xmlenc.Decrypt(sessionKey, dataEl)
	}
	return xmlenc.Decrypt(key, dataEl)
}
