package saml2

import (
	"crypto"
	"crypto/x509"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
)

// allowedTransforms is the closed set of transforms a signature
// reference may declare. Anything else is rejected before any crypto
// runs.
var allowedTransforms = map[string]bool{
	"http://www.w3.org/2000/09/xmldsig#enveloped-signature": true,
	"http://www.w3.org/2001/10/xml-exc-c14n#":               true,
	"http://www.w3.org/2001/10/xml-exc-c14n#WithComments":   true,
}

// knownSignatureMethods maps signature algorithm URIs to the hash they
// require of the platform.
var knownSignatureMethods = map[string]crypto.Hash{
	SigAlgRSASHA1:   crypto.SHA1,
	SigAlgRSASHA256: crypto.SHA256,
	SigAlgRSASHA512: crypto.SHA512,
}

// verifySignedElement checks the enveloped signature directly under el
// against the candidate certificate set. Verification succeeds when any
// candidate validates the signature.
//
// Before any cryptography the SignedInfo shape is pinned down: exactly
// one Reference, whose URI names el itself, with every transform drawn
// from the allow-list. A signature that references anything other than
// the element it hangs off is how XML signature wrapping smuggles
// attacker content past the verifier.
func verifySignedElement(el *etree.Element, certs []*x509.Certificate) error {
	sigEl, err := findChild(el, DsigNamespace, "Signature")
	if err != nil {
		return validationErrorWrap(ErrXMLMalformed, err, "cannot inspect element")
	}
	if sigEl == nil {
		return validationError(ErrNotSigned, "element <%s> carries no Signature", el.Tag)
	}

	signedInfoEl, err := findChild(sigEl, DsigNamespace, "SignedInfo")
	if err != nil {
		return validationErrorWrap(ErrXMLMalformed, err, "cannot inspect Signature")
	}
	if signedInfoEl == nil {
		return validationError(ErrXMLMalformed, "Signature has no SignedInfo")
	}

	references, err := findChildren(signedInfoEl, DsigNamespace, "Reference")
	if err != nil {
		return validationErrorWrap(ErrXMLMalformed, err, "cannot inspect SignedInfo")
	}
	switch {
	case len(references) == 0:
		return validationError(ErrNoReference, "SignedInfo carries no Reference")
	case len(references) > 1:
		return validationError(ErrMultipleReferences, "SignedInfo carries %d References", len(references))
	}
	reference := references[0]

	id := el.SelectAttrValue("ID", "")
	uri := reference.SelectAttrValue("URI", "")
	if id == "" || uri != "#"+id {
		return validationError(ErrReferenceMismatch, "Reference URI %q does not name the signed element (ID %q)", uri, id)
	}

	if transformsEl, err := findChild(reference, DsigNamespace, "Transforms"); err != nil {
		return validationErrorWrap(ErrXMLMalformed, err, "cannot inspect Reference")
	} else if transformsEl != nil {
		transforms, err := findChildren(transformsEl, DsigNamespace, "Transform")
		if err != nil {
			return validationErrorWrap(ErrXMLMalformed, err, "cannot inspect Transforms")
		}
		for _, transform := range transforms {
			algorithm := transform.SelectAttrValue("Algorithm", "")
			if !allowedTransforms[algorithm] {
				return validationError(ErrDisallowedTransform, "transform %q is not allowed", algorithm)
			}
		}
	}

	if methodEl, err := findChild(signedInfoEl, DsigNamespace, "SignatureMethod"); err != nil {
		return validationErrorWrap(ErrXMLMalformed, err, "cannot inspect SignedInfo")
	} else if methodEl != nil {
		algorithm := methodEl.SelectAttrValue("Algorithm", "")
		if hash, ok := knownSignatureMethods[algorithm]; ok && !hash.Available() {
			if hash == crypto.SHA256 {
				return validationError(ErrSha256NotRegistered, "RSA-SHA256 is not registered with the platform crypto provider")
			}
			return validationError(ErrSignatureInvalid, "hash for %q is not available", algorithm)
		}
	}

	// Some IdPs send a KeyInfo carrying an RSAKeyValue instead of a
	// certificate. Either the key is the one we already trust from
	// configuration, or it is one we cannot trust at all; dropping the
	// KeyInfo makes the verifier fall back to the configured
	// certificate set.
	if sigEl.FindElement("./KeyInfo/X509Data/X509Certificate") == nil {
		if keyInfo := sigEl.FindElement("./KeyInfo"); keyInfo != nil {
			sigEl.RemoveChild(keyInfo)
		}
	}

	detached, err := detachElement(el)
	if err != nil {
		return validationErrorWrap(ErrXMLMalformed, err, "cannot detach signed element")
	}
	// Verify a freshly parsed copy: a tree assembled in memory (the
	// signer appends its Signature straight onto the child list) can
	// carry stale child positions, which the enveloped-signature
	// transform relies on to remove the right element.
	detachedRaw, err := serializeElement(detached)
	if err != nil {
		return validationErrorWrap(ErrXMLMalformed, err, "cannot serialize signed element")
	}
	detachedDoc, err := parseXMLDocument(detachedRaw)
	if err != nil {
		return validationErrorWrap(ErrXMLMalformed, err, "cannot reparse signed element")
	}

	certificateStore := dsig.MemoryX509CertificateStore{Roots: certs}
	validationContext := dsig.NewDefaultValidationContext(&certificateStore)
	validationContext.IdAttribute = "ID"
	if Clock != nil {
		validationContext.Clock = Clock
	}

	if _, err := validationContext.Validate(detachedDoc.Root()); err != nil {
		return validationErrorWrap(ErrSignatureInvalid, err, "no candidate key validates the signature")
	}
	return nil
}

// elementIsSigned reports whether el carries a direct Signature child.
func elementIsSigned(el *etree.Element) (bool, error) {
	sigEl, err := findChild(el, DsigNamespace, "Signature")
	if err != nil {
		return false, err
	}
	return sigEl != nil, nil
}
