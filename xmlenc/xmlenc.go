// Package xmlenc implements the subset of XML Encryption
// (https://www.w3.org/TR/xmlenc-core/) that SAML needs: AES and 3DES
// block encryption of element content, with the session key
// transported under RSA-OAEP or RSA PKCS#1 v1.5.
package xmlenc

import (
	"crypto"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/beevik/etree"
)

// RandReader is the io.Reader that produces random bytes for keys,
// initialization vectors and nonces. The default value is rand.Reader,
// but it can be replaced for testing.
var RandReader io.Reader = rand.Reader

// Decrypter can decrypt a ciphertext element encrypted under the
// algorithm it names.
type Decrypter interface {
	Algorithm() string
	Decrypt(key interface{}, ciphertextEl *etree.Element) ([]byte, error)
}

// BlockCipher is a symmetric cipher with a fixed key size, like AES or
// 3DES, producing EncryptedData elements.
type BlockCipher interface {
	Decrypter
	KeySize() int
	Encrypt(key []byte, plaintext []byte) (*etree.Element, error)
}

// DigestMethod names a digest usable in OAEP key transport.
type DigestMethod struct {
	Algorithm string
	Hash      crypto.Hash
}

// Digest methods
var (
	SHA1 = DigestMethod{
		Algorithm: "http://www.w3.org/2000/09/xmldsig#sha1",
		Hash:      crypto.SHA1,
	}
	SHA256 = DigestMethod{
		Algorithm: "http://www.w3.org/2001/04/xmlenc#sha256",
		Hash:      crypto.SHA256,
	}
	SHA384 = DigestMethod{
		Algorithm: "http://www.w3.org/2001/04/xmldsig-more#sha384",
		Hash:      crypto.SHA384,
	}
	SHA512 = DigestMethod{
		Algorithm: "http://www.w3.org/2001/04/xmlenc#sha512",
		Hash:      crypto.SHA512,
	}
)

var digestMethods = map[string]DigestMethod{
	SHA1.Algorithm:   SHA1,
	SHA256.Algorithm: SHA256,
	SHA384.Algorithm: SHA384,
	SHA512.Algorithm: SHA512,
}

var registeredDecrypters = map[string]Decrypter{}

// RegisterDecrypter makes d available to Decrypt.
func RegisterDecrypter(d Decrypter) {
	registeredDecrypters[d.Algorithm()] = d
}

// Decrypt decrypts ciphertextEl, which must be an EncryptedData or
// EncryptedKey element carrying an EncryptionMethod. For EncryptedKey
// the result is the session key; for EncryptedData whose session key
// is wrapped in an embedded EncryptedKey, key may be the RSA private
// key and the session key is unwrapped on the way.
func Decrypt(key interface{}, ciphertextEl *etree.Element) ([]byte, error) {
	encryptionMethodEl := ciphertextEl.FindElement("./EncryptionMethod")
	if encryptionMethodEl == nil {
		return nil, ErrCannotFindRequiredElement("EncryptionMethod")
	}
	algorithm := encryptionMethodEl.SelectAttrValue("Algorithm", "")
	decrypter, ok := registeredDecrypters[algorithm]
	if !ok {
		return nil, ErrAlgorithmNotImplemented(algorithm)
	}
	return decrypter.Decrypt(key, ciphertextEl)
}

// getCiphertext extracts and decodes the CipherValue of el.
func getCiphertext(el *etree.Element) ([]byte, error) {
	cipherValueEl := el.FindElement("./CipherData/CipherValue")
	if cipherValueEl == nil {
		return nil, ErrCannotFindRequiredElement("CipherData/CipherValue")
	}
	text := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, cipherValueEl.Text())
	ciphertext, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("cannot decode CipherValue: %v", err)
	}
	return ciphertext, nil
}

// blockKey resolves the symmetric key for a block cipher: either the
// key bytes themselves, or an asymmetric key used to unwrap the
// session key from the embedded EncryptedKey.
func blockKey(key interface{}, keySize int, ciphertextEl *etree.Element) ([]byte, error) {
	keyBuf, ok := key.([]byte)
	if !ok {
		encryptedKeyEl := ciphertextEl.FindElement("./KeyInfo/EncryptedKey")
		if encryptedKeyEl == nil {
			return nil, ErrCannotFindRequiredElement("KeyInfo/EncryptedKey")
		}
		var err error
		keyBuf, err = Decrypt(key, encryptedKeyEl)
		if err != nil {
			return nil, err
		}
	}
	if len(keyBuf) != keySize {
		return nil, ErrIncorrectKeyLength(keySize)
	}
	return keyBuf, nil
}

// newEncryptedData builds the EncryptedData envelope shared by the
// block ciphers.
func newEncryptedData(algorithm string) *etree.Element {
	encryptedDataEl := etree.NewElement("xenc:EncryptedData")
	encryptedDataEl.CreateAttr("xmlns:xenc", "http://www.w3.org/2001/04/xmlenc#")
	encryptedDataEl.CreateAttr("Type", "http://www.w3.org/2001/04/xmlenc#Element")
	encryptionMethodEl := encryptedDataEl.CreateElement("xenc:EncryptionMethod")
	encryptionMethodEl.CreateAttr("Algorithm", algorithm)
	return encryptedDataEl
}

// setCiphertext attaches CipherData/CipherValue to el.
func setCiphertext(el *etree.Element, ciphertext []byte) {
	cipherDataEl := el.CreateElement("xenc:CipherData")
	cipherDataEl.CreateElement("xenc:CipherValue").SetText(
		base64.StdEncoding.EncodeToString(ciphertext))
}
