package xmlenc

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/beevik/etree"
)

// GCM implements AES in Galois/Counter mode. The nonce is carried as
// the leading twelve bytes of the ciphertext and the authentication
// tag as the trailing sixteen.
type GCM struct {
	keySize   int
	algorithm string
}

// KeySize returns the length of the key in bytes.
func (e GCM) KeySize() int { return e.keySize }

// Algorithm returns the name of the algorithm, as will be found
// in an xenc:EncryptionMethod element.
func (e GCM) Algorithm() string { return e.algorithm }

// Encrypt encrypts plaintext with key under a random nonce and returns
// an EncryptedData element.
func (e GCM) Encrypt(key []byte, plaintext []byte) (*etree.Element, error) {
	return e.EncryptWithNonce(key, plaintext, nil)
}

// EncryptWithNonce is Encrypt with a caller supplied nonce. A nil
// nonce draws one from RandReader.
func (e GCM) EncryptWithNonce(key []byte, plaintext []byte, nonce []byte) (*etree.Element, error) {
	if len(key) != e.keySize {
		return nil, ErrIncorrectKeyLength(e.keySize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if nonce == nil {
		nonce = make([]byte, aead.NonceSize())
		if _, err := RandReader.Read(nonce); err != nil {
			return nil, err
		}
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("expected nonce of length %d bytes", aead.NonceSize())
	}

	ciphertext := aead.Seal(nonce, nonce, plaintext, nil)

	encryptedDataEl := newEncryptedData(e.algorithm)
	setCiphertext(encryptedDataEl, ciphertext)
	return encryptedDataEl, nil
}

// Decrypt decrypts ciphertextEl. key may be the symmetric key bytes or
// an RSA private key unwrapping the embedded EncryptedKey.
func (e GCM) Decrypt(key interface{}, ciphertextEl *etree.Element) ([]byte, error) {
	keyBuf, err := blockKey(key, e.keySize, ciphertextEl)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(keyBuf)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	ciphertext, err := getCiphertext(ciphertextEl)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < aead.NonceSize()+aead.Overhead() {
		return nil, fmt.Errorf("ciphertext of length %d is too short", len(ciphertext))
	}
	nonce, ciphertext := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	return aead.Open(nil, nonce, ciphertext, nil)
}

// GCM block ciphers
var (
	AES128GCM BlockCipher = GCM{
		keySize:   16,
		algorithm: "http://www.w3.org/2009/xmlenc11#aes128-gcm",
	}
	AES192GCM BlockCipher = GCM{
		keySize:   24,
		algorithm: "http://www.w3.org/2009/xmlenc11#aes192-gcm",
	}
	AES256GCM BlockCipher = GCM{
		keySize:   32,
		algorithm: "http://www.w3.org/2009/xmlenc11#aes256-gcm",
	}
)
