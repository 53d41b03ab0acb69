package keys

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

const ivSize = 12

// NewSalt returns a fresh HKDF salt for one encryption.
func NewSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// Encrypt seals plaintext with AES-256-GCM under key, stamping the
// envelope with the sender's public key and the salt used to derive key.
// The serialized sender is bound into the GCM additional data, so
// rewriting the envelope's Sender field after the fact makes the
// ciphertext undecryptable instead of redirecting the key agreement.
func Encrypt(key, plaintext []byte, sender RawKey, salt []byte) (Ciphertext, error) {
	aead, err := newGCM(key)
	if err != nil {
		return Ciphertext{}, err
	}
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return Ciphertext{}, err
	}
	sender = sender.PublicKey()
	sealed := aead.Seal(nil, iv, plaintext, []byte(Serialize(sender)))
	return Ciphertext{
		Data:   b64(sealed),
		IV:     b64(iv),
		Salt:   b64(salt),
		Sender: sender,
	}, nil
}

// Decrypt opens c under key. It fails closed with ErrDecrypt on a wrong
// key, tampered data, or a malformed envelope; it never returns garbage
// plaintext.
func Decrypt(key []byte, c Ciphertext) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	iv, err := b64decode(c.IV)
	if err != nil || len(iv) != ivSize {
		return nil, fmt.Errorf("%w: bad iv", ErrDecrypt)
	}
	sealed, err := b64decode(c.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: bad data", ErrDecrypt)
	}
	plaintext, err := aead.Open(nil, iv, sealed, []byte(Serialize(c.Sender.PublicKey())))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != SharedKeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes", ErrKeyMismatch, SharedKeySize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
