package saml2

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"math/big"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/require"
)

const (
	testIDPEntityID = "https://idp.example.com/metadata"
	testSPEntityID  = "https://sp.example.com/metadata"
)

var testSerial int64

func newCertificatePair(t *testing.T) CertificatePair {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	testSerial++
	template := &x509.Certificate{
		SerialNumber: big.NewInt(testSerial),
		Subject:      pkix.Name{CommonName: "saml2 test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return CertificatePair{Key: key, Certificate: cert}
}

func makeOptions(t *testing.T, idpPair CertificatePair, decryptionPairs ...CertificatePair) *Options {
	t.Helper()
	return &Options{
		SP: SPOptions{
			EntityID:        testSPEntityID,
			DecryptionPairs: decryptionPairs,
		},
		IdentityProviders: map[string]*IdentityProvider{
			testIDPEntityID: {
				EntityID:     testIDPEntityID,
				SigningCerts: []*x509.Certificate{idpPair.Certificate},
			},
		},
		RequestStore: NewMemoryRequestStore(),
	}
}

type fixture struct {
	inResponseTo  string
	status        StatusCode
	secondLevel   string
	statusMessage string
	signResponse  bool
	signAssertion bool
	encryptTo     *CertificatePair
	audience      string
	omitAssertion bool
	nameID        string
}

func buildAssertionElement(t *testing.T, fx fixture, now time.Time) *etree.Element {
	t.Helper()
	nameID := fx.nameID
	if nameID == "" {
		nameID = "alice@example.com"
	}

	el := etree.NewElement("saml2:Assertion")
	el.CreateAttr("xmlns:saml2", AssertionNamespace)
	el.CreateAttr("ID", NewID())
	el.CreateAttr("Version", "2.0")
	el.CreateAttr("IssueInstant", formatTime(now))

	issuerEl := el.CreateElement("saml2:Issuer")
	issuerEl.SetText(testIDPEntityID)

	subjectEl := el.CreateElement("saml2:Subject")
	nameIDEl := subjectEl.CreateElement("saml2:NameID")
	nameIDEl.CreateAttr("Format", string(EmailAddressNameIDFormat))
	nameIDEl.SetText(nameID)
	confirmationEl := subjectEl.CreateElement("saml2:SubjectConfirmation")
	confirmationEl.CreateAttr("Method", BearerMethod)
	dataEl := confirmationEl.CreateElement("saml2:SubjectConfirmationData")
	if fx.inResponseTo != "" {
		dataEl.CreateAttr("InResponseTo", fx.inResponseTo)
	}
	dataEl.CreateAttr("NotOnOrAfter", formatTime(now.Add(5*time.Minute)))

	conditionsEl := el.CreateElement("saml2:Conditions")
	conditionsEl.CreateAttr("NotBefore", formatTime(now.Add(-time.Minute)))
	conditionsEl.CreateAttr("NotOnOrAfter", formatTime(now.Add(5*time.Minute)))
	if fx.audience != "" {
		restrictionEl := conditionsEl.CreateElement("saml2:AudienceRestriction")
		audienceEl := restrictionEl.CreateElement("saml2:Audience")
		audienceEl.SetText(fx.audience)
	}

	authnEl := el.CreateElement("saml2:AuthnStatement")
	authnEl.CreateAttr("AuthnInstant", formatTime(now))
	authnEl.CreateAttr("SessionIndex", "session-1")

	statementEl := el.CreateElement("saml2:AttributeStatement")
	attrEl := statementEl.CreateElement("saml2:Attribute")
	attrEl.CreateAttr("Name", "uid")
	valueEl := attrEl.CreateElement("saml2:AttributeValue")
	valueEl.SetText("alice")

	return el
}

// encryptAssertionElement wraps raw assertion XML in an
// EncryptedAssertion decryptable by `to`: AES-128-CBC content with an
// RSA-OAEP wrapped session key.
func encryptAssertionElement(t *testing.T, raw []byte, to CertificatePair) *etree.Element {
	t.Helper()

	sessionKey := make([]byte, 16)
	_, err := rand.Read(sessionKey)
	require.NoError(t, err)

	block, err := aes.NewCipher(sessionKey)
	require.NoError(t, err)
	padding := block.BlockSize() - len(raw)%block.BlockSize()
	padded := append(append([]byte{}, raw...), bytesRepeat(byte(padding), padding)...)
	ciphered := make([]byte, block.BlockSize()+len(padded))
	iv := ciphered[:block.BlockSize()]
	_, err = rand.Read(iv)
	require.NoError(t, err)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphered[block.BlockSize():], padded)

	publicKey := to.Certificate.PublicKey.(*rsa.PublicKey)
	wrappedKey, err := rsa.EncryptOAEP(sha1.New(), rand.Reader, publicKey, sessionKey, nil)
	require.NoError(t, err)

	el := etree.NewElement("saml2:EncryptedAssertion")
	el.CreateAttr("xmlns:saml2", AssertionNamespace)

	dataEl := el.CreateElement("xenc:EncryptedData")
	dataEl.CreateAttr("xmlns:xenc", XencNamespace)
	methodEl := dataEl.CreateElement("xenc:EncryptionMethod")
	methodEl.CreateAttr("Algorithm", "http://www.w3.org/2001/04/xmlenc#aes128-cbc")
	cipherDataEl := dataEl.CreateElement("xenc:CipherData")
	cipherValueEl := cipherDataEl.CreateElement("xenc:CipherValue")
	cipherValueEl.SetText(base64.StdEncoding.EncodeToString(ciphered))

	keyEl := el.CreateElement("xenc:EncryptedKey")
	keyEl.CreateAttr("xmlns:xenc", XencNamespace)
	keyMethodEl := keyEl.CreateElement("xenc:EncryptionMethod")
	keyMethodEl.CreateAttr("Algorithm", "http://www.w3.org/2001/04/xmlenc#rsa-oaep-mgf1p")
	keyCipherDataEl := keyEl.CreateElement("xenc:CipherData")
	keyCipherValueEl := keyCipherDataEl.CreateElement("xenc:CipherValue")
	keyCipherValueEl.SetText(base64.StdEncoding.EncodeToString(wrappedKey))

	return el
}

func bytesRepeat(b byte, n int) []byte {
	rv := make([]byte, n)
	for i := range rv {
		rv[i] = b
	}
	return rv
}

// buildResponseXML renders a complete response per the fixture.
func buildResponseXML(t *testing.T, idpPair CertificatePair, fx fixture) []byte {
	t.Helper()
	now := TimeNow()

	root := etree.NewElement("saml2p:Response")
	root.CreateAttr("xmlns:saml2p", ProtocolNamespace)
	root.CreateAttr("xmlns:saml2", AssertionNamespace)
	root.CreateAttr("ID", NewID())
	root.CreateAttr("Version", "2.0")
	root.CreateAttr("IssueInstant", formatTime(now))
	if fx.inResponseTo != "" {
		root.CreateAttr("InResponseTo", fx.inResponseTo)
	}

	issuerEl := root.CreateElement("saml2:Issuer")
	issuerEl.SetText(testIDPEntityID)

	statusEl := root.CreateElement("saml2p:Status")
	codeEl := statusEl.CreateElement("saml2p:StatusCode")
	codeEl.CreateAttr("Value", fx.status.URI())
	if fx.secondLevel != "" {
		secondEl := codeEl.CreateElement("saml2p:StatusCode")
		secondEl.CreateAttr("Value", fx.secondLevel)
	}
	if fx.statusMessage != "" {
		messageEl := statusEl.CreateElement("saml2p:StatusMessage")
		messageEl.SetText(fx.statusMessage)
	}

	if !fx.omitAssertion {
		assertionEl := buildAssertionElement(t, fx, now)
		if fx.signAssertion {
			signingContext, err := idpPair.signingContext("")
			require.NoError(t, err)
			assertionEl, err = signingContext.SignEnveloped(assertionEl)
			require.NoError(t, err)
		}
		if fx.encryptTo != nil {
			doc := etree.NewDocument()
			doc.SetRoot(assertionEl)
			raw, err := doc.WriteToBytes()
			require.NoError(t, err)
			root.AddChild(encryptAssertionElement(t, raw, *fx.encryptTo))
		} else {
			root.AddChild(assertionEl)
		}
	}

	if fx.signResponse {
		signingContext, err := idpPair.signingContext("")
		require.NoError(t, err)
		signed, err := signingContext.SignEnveloped(root)
		require.NoError(t, err)
		root = signed
	}

	doc := etree.NewDocument()
	doc.SetRoot(root)
	raw, err := doc.WriteToBytes()
	require.NoError(t, err)
	return raw
}
