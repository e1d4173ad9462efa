package xmlenc

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"

	"github.com/beevik/etree"
)

// RSA implements key transport: a fresh session key encrypts the
// plaintext with BlockCipher, and the session key itself travels
// RSA-encrypted inside an EncryptedKey element.
type RSA struct {
	// BlockCipher encrypts the payload with the session key.
	BlockCipher BlockCipher

	// DigestMethod is the digest used by OAEP.
	DigestMethod *DigestMethod

	algorithm  string
	keyEncrypt func(e RSA, pub *rsa.PublicKey, sessionKey []byte) ([]byte, error)
	keyDecrypt func(e RSA, priv *rsa.PrivateKey, digest DigestMethod, ciphertext []byte) ([]byte, error)
}

// OAEP returns a session key encrypter using RSA-OAEP-MGF1P.
func OAEP() RSA {
	return RSA{
		BlockCipher:  AES256CBC,
		DigestMethod: &SHA256,
		algorithm:    "http://www.w3.org/2001/04/xmlenc#rsa-oaep-mgf1p",
		keyEncrypt: func(e RSA, pub *rsa.PublicKey, sessionKey []byte) ([]byte, error) {
			return rsa.EncryptOAEP(e.DigestMethod.Hash.New(), RandReader, pub, sessionKey, nil)
		},
		keyDecrypt: func(e RSA, priv *rsa.PrivateKey, digest DigestMethod, ciphertext []byte) ([]byte, error) {
			return rsa.DecryptOAEP(digest.Hash.New(), RandReader, priv, ciphertext, nil)
		},
	}
}

// PKCS1v15 returns a session key encrypter using RSAES-PKCS1-v1_5.
// OAEP is preferred; this exists for identity providers that still
// send rsa-1_5.
func PKCS1v15() RSA {
	return RSA{
		BlockCipher: AES256CBC,
		algorithm:   "http://www.w3.org/2001/04/xmlenc#rsa-1_5",
		keyEncrypt: func(e RSA, pub *rsa.PublicKey, sessionKey []byte) ([]byte, error) {
			return rsa.EncryptPKCS1v15(RandReader, pub, sessionKey)
		},
		keyDecrypt: func(e RSA, priv *rsa.PrivateKey, digest DigestMethod, ciphertext []byte) ([]byte, error) {
			return rsa.DecryptPKCS1v15(RandReader, priv, ciphertext)
		},
	}
}

// Algorithm returns the name of the key transport algorithm, as will
// be found in an xenc:EncryptionMethod element.
func (e RSA) Algorithm() string { return e.algorithm }

// Encrypt encrypts plaintext for certificate and returns an
// EncryptedData element whose KeyInfo carries the wrapped session key
// and the certificate. nonce is forwarded to GCM block ciphers; pass
// nil to use a random one.
func (e RSA) Encrypt(certificate *x509.Certificate, plaintext []byte, nonce []byte) (*etree.Element, error) {
	pub, ok := certificate.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, ErrAlgorithmNotImplemented("certificate does not hold an RSA public key")
	}

	sessionKey := make([]byte, e.BlockCipher.KeySize())
	if _, err := RandReader.Read(sessionKey); err != nil {
		return nil, err
	}

	var encryptedDataEl *etree.Element
	var err error
	if gcm, ok := e.BlockCipher.(GCM); ok && nonce != nil {
		encryptedDataEl, err = gcm.EncryptWithNonce(sessionKey, plaintext, nonce)
	} else {
		encryptedDataEl, err = e.BlockCipher.Encrypt(sessionKey, plaintext)
	}
	if err != nil {
		return nil, err
	}

	keyCiphertext, err := e.keyEncrypt(e, pub, sessionKey)
	if err != nil {
		return nil, err
	}

	keyInfoEl := etree.NewElement("ds:KeyInfo")
	keyInfoEl.CreateAttr("xmlns:ds", "http://www.w3.org/2000/09/xmldsig#")
	encryptedKeyEl := keyInfoEl.CreateElement("xenc:EncryptedKey")
	encryptionMethodEl := encryptedKeyEl.CreateElement("xenc:EncryptionMethod")
	encryptionMethodEl.CreateAttr("Algorithm", e.algorithm)
	if e.DigestMethod != nil {
		digestMethodEl := encryptionMethodEl.CreateElement("ds:DigestMethod")
		digestMethodEl.CreateAttr("Algorithm", e.DigestMethod.Algorithm)
	}
	innerKeyInfoEl := encryptedKeyEl.CreateElement("ds:KeyInfo")
	x509DataEl := innerKeyInfoEl.CreateElement("ds:X509Data")
	x509DataEl.CreateElement("ds:X509Certificate").SetText(
		base64.StdEncoding.EncodeToString(certificate.Raw))
	setCiphertext(encryptedKeyEl, keyCiphertext)

	// KeyInfo goes between EncryptionMethod and CipherData
	cipherDataEl := encryptedDataEl.FindElement("./CipherData")
	encryptedDataEl.RemoveChild(cipherDataEl)
	encryptedDataEl.AddChild(keyInfoEl)
	encryptedDataEl.AddChild(cipherDataEl)
	return encryptedDataEl, nil
}

// Decrypt unwraps the session key carried by an EncryptedKey element.
// key must be an *rsa.PrivateKey.
func (e RSA) Decrypt(key interface{}, ciphertextEl *etree.Element) ([]byte, error) {
	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, ErrAlgorithmNotImplemented("key transport requires an RSA private key")
	}
	ciphertext, err := getCiphertext(ciphertextEl)
	if err != nil {
		return nil, err
	}

	digest := SHA1
	if el := ciphertextEl.FindElement("./EncryptionMethod/DigestMethod"); el != nil {
		algorithm := el.SelectAttrValue("Algorithm", "")
		var ok bool
		if digest, ok = digestMethods[algorithm]; !ok {
			return nil, ErrAlgorithmNotImplemented(algorithm)
		}
	}
	return e.keyDecrypt(e, priv, digest, ciphertext)
}

func init() {
	RegisterDecrypter(AES128CBC)
	RegisterDecrypter(AES192CBC)
	RegisterDecrypter(AES256CBC)
	RegisterDecrypter(TripleDES)
	RegisterDecrypter(AES128GCM)
	RegisterDecrypter(AES192GCM)
	RegisterDecrypter(AES256GCM)
	RegisterDecrypter(OAEP())
	RegisterDecrypter(PKCS1v15())
}
