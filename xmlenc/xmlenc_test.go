package xmlenc

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encryptedDataElement(t *testing.T, algorithm string, ciphered []byte) *etree.Element {
	t.Helper()
	el := etree.NewElement("xenc:EncryptedData")
	el.CreateAttr("xmlns:xenc", "http://www.w3.org/2001/04/xmlenc#")
	methodEl := el.CreateElement("xenc:EncryptionMethod")
	methodEl.CreateAttr("Algorithm", algorithm)
	dataEl := el.CreateElement("xenc:CipherData")
	valueEl := dataEl.CreateElement("xenc:CipherValue")
	valueEl.SetText(base64.StdEncoding.EncodeToString(ciphered))
	return el
}

func cbcEncrypt(t *testing.T, key, plaintext []byte) []byte {
	t.Helper()
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	padding := block.BlockSize() - len(plaintext)%block.BlockSize()
	padded := append(append([]byte{}, plaintext...), make([]byte, padding)...)
	for i := len(plaintext); i < len(padded); i++ {
		padded[i] = byte(padding)
	}
	out := make([]byte, block.BlockSize()+len(padded))
	_, err = rand.Read(out[:block.BlockSize()])
	require.NoError(t, err)
	cipher.NewCBCEncrypter(block, out[:block.BlockSize()]).CryptBlocks(out[block.BlockSize():], padded)
	return out
}

func TestDecryptAESCBC(t *testing.T) {
	plaintext := []byte("<Assertion>sekrit</Assertion>")
	for algorithm, keySize := range map[string]int{
		"http://www.w3.org/2001/04/xmlenc#aes128-cbc": 16,
		"http://www.w3.org/2001/04/xmlenc#aes192-cbc": 24,
		"http://www.w3.org/2001/04/xmlenc#aes256-cbc": 32,
	} {
		key := make([]byte, keySize)
		_, err := rand.Read(key)
		require.NoError(t, err)
		el := encryptedDataElement(t, algorithm, cbcEncrypt(t, key, plaintext))

		got, err := Decrypt(key, el)
		require.NoError(t, err, algorithm)
		assert.Equal(t, plaintext, got, algorithm)
	}
}

func TestDecryptAESGCM(t *testing.T) {
	plaintext := []byte("<Assertion>sekrit</Assertion>")
	key := make([]byte, 16)
	_, err := rand.Read(key)
	require.NoError(t, err)

	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	gcm, err := cipher.NewGCM(block)
	require.NoError(t, err)
	nonce := make([]byte, gcm.NonceSize())
	_, err = rand.Read(nonce)
	require.NoError(t, err)
	ciphered := gcm.Seal(nonce, nonce, plaintext, nil)

	el := encryptedDataElement(t, "http://www.w3.org/2009/xmlenc11#aes128-gcm", ciphered)
	got, err := Decrypt(key, el)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestDecryptWrongKeySize(t *testing.T) {
	el := encryptedDataElement(t, "http://www.w3.org/2001/04/xmlenc#aes256-cbc", make([]byte, 48))
	_, err := Decrypt(make([]byte, 16), el)
	assert.Error(t, err)
}

func TestDecryptUnknownAlgorithm(t *testing.T) {
	el := encryptedDataElement(t, "urn:example:rot13", []byte("x"))
	_, err := Decrypt([]byte("key"), el)
	var notImplemented ErrAlgorithmNotImplemented
	assert.ErrorAs(t, err, &notImplemented)
}

func TestDecryptRSAOAEP(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	sessionKey := []byte("0123456789abcdef")

	wrapped, err := rsa.EncryptOAEP(sha1.New(), rand.Reader, &key.PublicKey, sessionKey, nil)
	require.NoError(t, err)
	el := encryptedDataElement(t, "http://www.w3.org/2001/04/xmlenc#rsa-oaep-mgf1p", wrapped)

	got, err := Decrypt(key, el)
	require.NoError(t, err)
	assert.Equal(t, sessionKey, got)
}

func TestDecryptRSAOAEPSha256Digest(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	sessionKey := []byte("0123456789abcdef")

	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, &key.PublicKey, sessionKey, nil)
	require.NoError(t, err)
	el := encryptedDataElement(t, "http://www.w3.org/2001/04/xmlenc#rsa-oaep-mgf1p", wrapped)
	digestEl := el.FindElement("./EncryptionMethod").CreateElement("xenc:DigestMethod")
	digestEl.CreateAttr("Algorithm", "http://www.w3.org/2001/04/xmlenc#sha256")

	got, err := Decrypt(key, el)
	require.NoError(t, err)
	assert.Equal(t, sessionKey, got)
}

func TestDecryptRSAPKCS1(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	sessionKey := []byte("0123456789abcdef")

	wrapped, err := rsa.EncryptPKCS1v15(rand.Reader, &key.PublicKey, sessionKey)
	require.NoError(t, err)
	el := encryptedDataElement(t, "http://www.w3.org/2001/04/xmlenc#rsa-1_5", wrapped)

	got, err := Decrypt(key, el)
	require.NoError(t, err)
	assert.Equal(t, sessionKey, got)
}

func TestDecryptRSAWrongKey(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	wrapped, err := rsa.EncryptOAEP(sha1.New(), rand.Reader, &key.PublicKey, []byte("0123456789abcdef"), nil)
	require.NoError(t, err)
	el := encryptedDataElement(t, "http://www.w3.org/2001/04/xmlenc#rsa-oaep-mgf1p", wrapped)

	_, err = Decrypt(other, el)
	assert.Error(t, err)
}
