package keys

import (
	"crypto/ecdh"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/hkdf"
)

const (
	// SharedKeySize is the AES-256 key length produced by DeriveSharedKey.
	SharedKeySize = 32

	saltSize = 16
)

var hkdfInfo = []byte("ssasy-shared-key")

// DeriveSharedKey computes a symmetric key from one party's private key
// and the other's public key: ECDH on the shared curve, then HKDF-SHA256
// over the point's x coordinate with the given salt. The ECDH step is
// commutative, so both parties reach the same key from opposite halves,
// provided they use the same salt.
func DeriveSharedKey(priv, pub RawKey, salt []byte) ([]byte, error) {
	if !priv.IsPrivate() {
		return nil, fmt.Errorf("%w: first key must be private", ErrKeyMismatch)
	}
	if pub.IsPrivate() {
		pub = pub.PublicKey()
	}
	if priv.Crv != pub.Crv {
		return nil, fmt.Errorf("%w: curve mismatch %q vs %q", ErrKeyMismatch, priv.Crv, pub.Crv)
	}
	if err := priv.Validate(); err != nil {
		return nil, err
	}
	if err := pub.Validate(); err != nil {
		return nil, err
	}
	if len(salt) != saltSize {
		return nil, fmt.Errorf("%w: salt must be %d bytes", ErrKeyMismatch, saltSize)
	}

	secret, err := sharedSecret(priv, pub)
	if err != nil {
		return nil, err
	}

	key := make([]byte, SharedKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, hkdfInfo), key); err != nil {
		return nil, err
	}
	return key, nil
}

func sharedSecret(priv, pub RawKey) ([]byte, error) {
	switch priv.Crv {
	case CurveP256:
		d, _ := b64decode(priv.D)
		sk, err := ecdh.P256().NewPrivateKey(d)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyMismatch, err)
		}
		point, err := pub.uncompressedPoint()
		if err != nil {
			return nil, err
		}
		pk, err := ecdh.P256().NewPublicKey(point)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyMismatch, err)
		}
		return sk.ECDH(pk)
	case CurveSecp256k1:
		d, _ := b64decode(priv.D)
		sk := secp256k1.PrivKeyFromBytes(d)
		point, err := pub.uncompressedPoint()
		if err != nil {
			return nil, err
		}
		pk, err := secp256k1.ParsePubKey(point)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyMismatch, err)
		}
		return secp256k1.GenerateSharedSecret(sk, pk), nil
	default:
		return nil, fmt.Errorf("%w: unsupported curve %q", ErrKeyMismatch, priv.Crv)
	}
}
