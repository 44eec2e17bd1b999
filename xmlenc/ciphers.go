package xmlenc

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"

	"github.com/beevik/etree"
	"github.com/pkg/errors"
)

// cbcCipher decrypts xmlenc CBC modes. The ciphertext carries the IV as
// its first block and PKCS#7 padding at the end.
type cbcCipher struct {
	algorithm string
	keySize   int
	newBlock  func([]byte) (cipher.Block, error)
}

func (c cbcCipher) Algorithm() string { return c.algorithm }

func (c cbcCipher) Decrypt(key interface{}, el *etree.Element) ([]byte, error) {
	keyBytes, ok := key.([]byte)
	if !ok {
		return nil, errors.Errorf("expected a []byte session key, got %T", key)
	}
	if len(keyBytes) != c.keySize {
		return nil, errors.Errorf("expected a %d byte key, got %d", c.keySize, len(keyBytes))
	}
	block, err := c.newBlock(keyBytes)
	if err != nil {
		return nil, err
	}
	data, err := ciphertext(el)
	if err != nil {
		return nil, err
	}
	blockSize := block.BlockSize()
	if len(data) < 2*blockSize || len(data)%blockSize != 0 {
		return nil, errors.New("ciphertext is not a whole number of blocks")
	}
	iv, body := data[:blockSize], data[blockSize:]
	plaintext := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, body)

	padding := int(plaintext[len(plaintext)-1])
	if padding == 0 || padding > blockSize {
		return nil, errors.New("invalid padding")
	}
	return plaintext[:len(plaintext)-padding], nil
}

// gcmCipher decrypts xmlenc 1.1 GCM modes. The nonce is the leading 12
// bytes of the ciphertext.
type gcmCipher struct {
	algorithm string
	keySize   int
}

func (c gcmCipher) Algorithm() string { return c.algorithm }

func (c gcmCipher) Decrypt(key interface{}, el *etree.Element) ([]byte, error) {
	keyBytes, ok := key.([]byte)
	if !ok {
		return nil, errors.Errorf("expected a []byte session key, got %T", key)
	}
	if len(keyBytes) != c.keySize {
		return nil, errors.Errorf("expected a %d byte key, got %d", c.keySize, len(keyBytes))
	}
	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	data, err := ciphertext(el)
	if err != nil {
		return nil, err
	}
	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, errors.New("ciphertext is shorter than the nonce")
	}
	return gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
}

func init() {
	RegisterDecrypter(cbcCipher{
		algorithm: "http://www.w3.org/2001/04/xmlenc#aes128-cbc",
		keySize:   16,
		newBlock:  aes.NewCipher,
	})
	RegisterDecrypter(cbcCipher{
		algorithm: "http://www.w3.org/2001/04/xmlenc#aes192-cbc",
		keySize:   24,
		newBlock:  aes.NewCipher,
	})
	RegisterDecrypter(cbcCipher{
		algorithm: "http://www.w3.org/2001/04/xmlenc#aes256-cbc",
		keySize:   32,
		newBlock:  aes.NewCipher,
	})
	RegisterDecrypter(cbcCipher{
		algorithm: "http://www.w3.org/2001/04/xmlenc#tripledes-cbc",
		keySize:   24,
		newBlock:  des.NewTripleDESCipher,
	})
	RegisterDecrypter(gcmCipher{
		algorithm: "http://www.w3.org/2009/xmlenc11#aes128-gcm",
		keySize:   16,
	})
	RegisterDecrypter(gcmCipher{
		algorithm: "http://www.w3.org/2009/xmlenc11#aes256-gcm",
		keySize:   32,
	})
}
