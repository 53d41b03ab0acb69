package keys

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// Sign produces a base64url DER signature of SHA-256(message) with the
// private key's curve-appropriate ECDSA.
func Sign(priv RawKey, message []byte) (string, error) {
	if !priv.IsPrivate() {
		return "", fmt.Errorf("%w: signing requires a private key", ErrKeyMismatch)
	}
	if err := priv.Validate(); err != nil {
		return "", err
	}
	digest := sha256.Sum256(message)
	d, _ := b64decode(priv.D)

	switch priv.Crv {
	case CurveP256:
		sk := &ecdsa.PrivateKey{
			PublicKey: ecdsa.PublicKey{Curve: elliptic.P256()},
			D:         new(big.Int).SetBytes(d),
		}
		sk.PublicKey.X, sk.PublicKey.Y = elliptic.P256().ScalarBaseMult(d)
		sig, err := ecdsa.SignASN1(rand.Reader, sk, digest[:])
		if err != nil {
			return "", err
		}
		return b64(sig), nil
	case CurveSecp256k1:
		sk := secp256k1.PrivKeyFromBytes(d)
		sig := secpecdsa.Sign(sk, digest[:])
		return b64(sig.Serialize()), nil
	default:
		return "", fmt.Errorf("%w: unsupported curve %q", ErrKeyMismatch, priv.Crv)
	}
}

// VerifySig reports whether sig is a valid signature of message by the
// holder of pub's private half.
func VerifySig(pub RawKey, message []byte, sig string) bool {
	if pub.IsPrivate() {
		pub = pub.PublicKey()
	}
	if pub.Validate() != nil {
		return false
	}
	raw, err := b64decode(sig)
	if err != nil {
		return false
	}
	digest := sha256.Sum256(message)

	switch pub.Crv {
	case CurveP256:
		point, err := pub.uncompressedPoint()
		if err != nil {
			return false
		}
		pk := &ecdsa.PublicKey{
			Curve: elliptic.P256(),
			X:     new(big.Int).SetBytes(point[1 : 1+coordSize]),
			Y:     new(big.Int).SetBytes(point[1+coordSize:]),
		}
		return ecdsa.VerifyASN1(pk, digest[:], raw)
	case CurveSecp256k1:
		point, err := pub.uncompressedPoint()
		if err != nil {
			return false
		}
		pk, err := secp256k1.ParsePubKey(point)
		if err != nil {
			return false
		}
		parsed, err := secpecdsa.ParseDERSignature(raw)
		if err != nil {
			return false
		}
		return parsed.Verify(digest[:], pk)
	default:
		return false
	}
}
