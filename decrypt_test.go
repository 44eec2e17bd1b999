package saml2

import (
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertionBytes(t *testing.T, fx fixture) []byte {
	t.Helper()
	doc := etree.NewDocument()
	doc.SetRoot(buildAssertionElement(t, fx, TimeNow()))
	raw, err := doc.WriteToBytes()
	require.NoError(t, err)
	return raw
}

func TestCollectAssertionsPlaintext(t *testing.T) {
	root := etree.NewElement("saml2p:Response")
	root.CreateAttr("xmlns:saml2p", ProtocolNamespace)
	root.CreateAttr("xmlns:saml2", AssertionNamespace)
	root.AddChild(buildAssertionElement(t, fixture{}, TimeNow()))
	root.AddChild(buildAssertionElement(t, fixture{nameID: "bob@example.com"}, TimeNow()))

	assertions, err := collectAssertions(root, nil)
	require.NoError(t, err)
	assert.Len(t, assertions, 2)
}

func TestCollectAssertionsMixedKeysRejected(t *testing.T) {
	pairA := newCertificatePair(t)
	pairB := newCertificatePair(t)

	// Two assertions encrypted to different keys. Whichever key is
	// configured can only open one of them; the response must be
	// rejected rather than half-decrypted.
	root := etree.NewElement("saml2p:Response")
	root.CreateAttr("xmlns:saml2p", ProtocolNamespace)
	root.CreateAttr("xmlns:saml2", AssertionNamespace)
	root.AddChild(encryptAssertionElement(t, assertionBytes(t, fixture{}), pairA))
	root.AddChild(encryptAssertionElement(t, assertionBytes(t, fixture{nameID: "bob@example.com"}), pairB))

	_, err := collectAssertions(root, []CertificatePair{pairA})
	requireKind(t, err, ErrDecryptionFailed)
}

func TestCollectAssertionsSecondKeyWins(t *testing.T) {
	wrong := newCertificatePair(t)
	right := newCertificatePair(t)

	root := etree.NewElement("saml2p:Response")
	root.CreateAttr("xmlns:saml2p", ProtocolNamespace)
	root.CreateAttr("xmlns:saml2", AssertionNamespace)
	root.AddChild(encryptAssertionElement(t, assertionBytes(t, fixture{}), right))

	assertions, err := collectAssertions(root, []CertificatePair{wrong, right})
	require.NoError(t, err)
	require.Len(t, assertions, 1)
	assert.Equal(t, "Assertion", assertions[0].Tag)
}

func TestCollectAssertionsNoPrivateKey(t *testing.T) {
	pair := newCertificatePair(t)

	root := etree.NewElement("saml2p:Response")
	root.CreateAttr("xmlns:saml2p", ProtocolNamespace)
	root.CreateAttr("xmlns:saml2", AssertionNamespace)
	root.AddChild(encryptAssertionElement(t, assertionBytes(t, fixture{}), pair))

	// A pair without private material cannot serve decryption.
	publicOnly := CertificatePair{Certificate: pair.Certificate}
	_, err := collectAssertions(root, []CertificatePair{publicOnly})
	requireKind(t, err, ErrNoDecryptionKey)
}
