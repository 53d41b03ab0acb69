// Package keys implements the cryptographic key model for the ssasy
// protocol: EC key pairs, a transportable raw-key form with a canonical
// string codec, ECDH shared-key derivation, and the AES-GCM ciphertext
// envelope used for encrypted challenges.
package keys

import (
	"bytes"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

const (
	TypePublic  = "public-key"
	TypePrivate = "private-key"

	CurveP256      = "P-256"
	CurveSecp256k1 = "secp256k1"
)

var (
	// ErrDecode reports malformed serialized keys or ciphertexts.
	ErrDecode = errors.New("decode failed")
	// ErrKeyMismatch reports invalid key material for key agreement or
	// signing: bad coordinates, a point off the curve, or two keys on
	// different curves.
	ErrKeyMismatch = errors.New("invalid key material")
	// ErrDecrypt reports a ciphertext that failed authenticated
	// decryption: wrong key, tampering, or truncation.
	ErrDecrypt = errors.New("decrypt failed")
)

const coordSize = 32

// RawKey is the transportable form of a key: curve name plus base64url
// coordinates, private keys additionally carry the scalar. It round-trips
// losslessly through Serialize/Deserialize.
type RawKey struct {
	Type string `json:"type"`
	Crv  string `json:"crv"`
	X    string `json:"x"`
	Y    string `json:"y"`
	D    string `json:"d,omitempty"`
}

type KeyPair struct {
	Private RawKey
	Public  RawKey
}

// GenerateKeyPair creates a fresh key pair on the named curve.
func GenerateKeyPair(crv string) (KeyPair, error) {
	switch crv {
	case CurveP256:
		priv, err := ecdh.P256().GenerateKey(rand.Reader)
		if err != nil {
			return KeyPair{}, err
		}
		return pairFromScalar(crv, priv.Bytes(), priv.PublicKey().Bytes())
	case CurveSecp256k1:
		priv, err := secp256k1.GeneratePrivateKey()
		if err != nil {
			return KeyPair{}, err
		}
		return pairFromScalar(crv, priv.Serialize(), priv.PubKey().SerializeUncompressed())
	default:
		return KeyPair{}, fmt.Errorf("%w: unsupported curve %q", ErrKeyMismatch, crv)
	}
}

func pairFromScalar(crv string, d, uncompressed []byte) (KeyPair, error) {
	if len(uncompressed) != 1+2*coordSize || uncompressed[0] != 4 {
		return KeyPair{}, fmt.Errorf("%w: unexpected public point encoding", ErrKeyMismatch)
	}
	x := b64(uncompressed[1 : 1+coordSize])
	y := b64(uncompressed[1+coordSize:])
	return KeyPair{
		Private: RawKey{Type: TypePrivate, Crv: crv, X: x, Y: y, D: b64(d)},
		Public:  RawKey{Type: TypePublic, Crv: crv, X: x, Y: y},
	}, nil
}

// PublicKey returns the shareable half of k, dropping the scalar.
func (k RawKey) PublicKey() RawKey {
	return RawKey{Type: TypePublic, Crv: k.Crv, X: k.X, Y: k.Y}
}

func (k RawKey) IsPrivate() bool { return k.Type == TypePrivate }

// Validate checks that k is structurally sound and that its point lies on
// the named curve. For private keys the public coordinates must match the
// scalar.
func (k RawKey) Validate() error {
	switch k.Type {
	case TypePublic, TypePrivate:
	default:
		return fmt.Errorf("%w: unknown key type %q", ErrKeyMismatch, k.Type)
	}
	point, err := k.uncompressedPoint()
	if err != nil {
		return err
	}
	switch k.Crv {
	case CurveP256:
		if _, err := ecdh.P256().NewPublicKey(point); err != nil {
			return fmt.Errorf("%w: %v", ErrKeyMismatch, err)
		}
		if k.Type == TypePrivate {
			d, err := b64decode(k.D)
			if err != nil || len(d) != coordSize {
				return fmt.Errorf("%w: bad private scalar", ErrKeyMismatch)
			}
			priv, err := ecdh.P256().NewPrivateKey(d)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrKeyMismatch, err)
			}
			if !bytes.Equal(priv.PublicKey().Bytes(), point) {
				return fmt.Errorf("%w: public coordinates do not match scalar", ErrKeyMismatch)
			}
		}
	case CurveSecp256k1:
		pub, err := secp256k1.ParsePubKey(point)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrKeyMismatch, err)
		}
		if k.Type == TypePrivate {
			d, err := b64decode(k.D)
			if err != nil || len(d) != coordSize {
				return fmt.Errorf("%w: bad private scalar", ErrKeyMismatch)
			}
			priv := secp256k1.PrivKeyFromBytes(d)
			if !priv.PubKey().IsEqual(pub) {
				return fmt.Errorf("%w: public coordinates do not match scalar", ErrKeyMismatch)
			}
		}
	default:
		return fmt.Errorf("%w: unsupported curve %q", ErrKeyMismatch, k.Crv)
	}
	return nil
}

// uncompressedPoint rebuilds the SEC1 uncompressed point from the
// base64url coordinates.
func (k RawKey) uncompressedPoint() ([]byte, error) {
	x, err := b64decode(k.X)
	if err != nil || len(x) != coordSize {
		return nil, fmt.Errorf("%w: bad x coordinate", ErrKeyMismatch)
	}
	y, err := b64decode(k.Y)
	if err != nil || len(y) != coordSize {
		return nil, fmt.Errorf("%w: bad y coordinate", ErrKeyMismatch)
	}
	point := make([]byte, 1, 1+2*coordSize)
	point[0] = 4
	point = append(point, x...)
	point = append(point, y...)
	return point, nil
}

func b64(b []byte) string { return base64.RawURLEncoding.EncodeToString(b) }

func b64decode(s string) ([]byte, error) { return base64.RawURLEncoding.DecodeString(s) }
