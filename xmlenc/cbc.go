package xmlenc

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des" //nolint:gosec  // 3DES decryption is required for interop
	"fmt"

	"github.com/beevik/etree"
)

// CBC implements a block cipher in cipher block chaining mode with
// PKCS#7 padding and the IV carried as the leading block of the
// ciphertext.
type CBC struct {
	keySize   int
	algorithm string
	cipher    func([]byte) (cipher.Block, error)
}

// KeySize returns the length of the key in bytes.
func (e CBC) KeySize() int { return e.keySize }

// Algorithm returns the name of the algorithm, as will be found
// in an xenc:EncryptionMethod element.
func (e CBC) Algorithm() string { return e.algorithm }

// Encrypt encrypts plaintext with key and returns an EncryptedData
// element.
func (e CBC) Encrypt(key []byte, plaintext []byte) (*etree.Element, error) {
	if len(key) != e.keySize {
		return nil, ErrIncorrectKeyLength(e.keySize)
	}
	block, err := e.cipher(key)
	if err != nil {
		return nil, err
	}

	padded := padPKCS7(plaintext, block.BlockSize())
	ciphertext := make([]byte, block.BlockSize()+len(padded))
	iv := ciphertext[:block.BlockSize()]
	if _, err := RandReader.Read(iv); err != nil {
		return nil, err
	}
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext[block.BlockSize():], padded)

	encryptedDataEl := newEncryptedData(e.algorithm)
	setCiphertext(encryptedDataEl, ciphertext)
	return encryptedDataEl, nil
}

// Decrypt decrypts ciphertextEl. key may be the symmetric key bytes or
// an RSA private key unwrapping the embedded EncryptedKey.
func (e CBC) Decrypt(key interface{}, ciphertextEl *etree.Element) ([]byte, error) {
	keyBuf, err := blockKey(key, e.keySize, ciphertextEl)
	if err != nil {
		return nil, err
	}
	block, err := e.cipher(keyBuf)
	if err != nil {
		return nil, err
	}
	ciphertext, err := getCiphertext(ciphertextEl)
	if err != nil {
		return nil, err
	}
	bs := block.BlockSize()
	if len(ciphertext) < 2*bs || len(ciphertext)%bs != 0 {
		return nil, fmt.Errorf("ciphertext length %d is not a whole number of blocks", len(ciphertext))
	}
	iv, ciphertext := ciphertext[:bs], ciphertext[bs:]
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)
	return unpadPKCS7(plaintext, bs)
}

// CBC block ciphers
var (
	AES128CBC BlockCipher = CBC{
		keySize:   16,
		algorithm: "http://www.w3.org/2001/04/xmlenc#aes128-cbc",
		cipher:    aes.NewCipher,
	}
	AES192CBC BlockCipher = CBC{
		keySize:   24,
		algorithm: "http://www.w3.org/2001/04/xmlenc#aes192-cbc",
		cipher:    aes.NewCipher,
	}
	AES256CBC BlockCipher = CBC{
		keySize:   32,
		algorithm: "http://www.w3.org/2001/04/xmlenc#aes256-cbc",
		cipher:    aes.NewCipher,
	}
	TripleDES BlockCipher = CBC{
		keySize:   24,
		algorithm: "http://www.w3.org/2001/04/xmlenc#tripledes-cbc",
		cipher:    des.NewTripleDESCipher,
	}
)

func padPKCS7(buf []byte, blockSize int) []byte {
	n := blockSize - len(buf)%blockSize
	padded := make([]byte, len(buf)+n)
	copy(padded, buf)
	for i := len(buf); i < len(padded); i++ {
		padded[i] = byte(n)
	}
	return padded
}

func unpadPKCS7(buf []byte, blockSize int) ([]byte, error) {
	if len(buf) == 0 {
		return nil, fmt.Errorf("empty plaintext")
	}
	n := int(buf[len(buf)-1])
	if n == 0 || n > blockSize || n > len(buf) {
		return nil, fmt.Errorf("invalid padding")
	}
	for _, b := range buf[len(buf)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("invalid padding")
		}
	}
	return buf[:len(buf)-n], nil
}
