// Package challenge implements the encrypted challenge-response exchange
// at the heart of the ssasy handshake. A verifier encrypts a challenge to
// a claimant's public key; only the holder of the matching private key
// can decrypt it and produce a solution the verifier accepts.
package challenge

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ssasy-auth/demo/internal/keys"
)

// ErrVerification reports a challenge solution that could not be
// accepted. Every failure mode maps to this one error so callers cannot
// distinguish a wrong key from a stale or tampered solution.
var ErrVerification = errors.New("challenge verification failed")

const nonceSize = 32

// payload is the plaintext inside a challenge or solution envelope. The
// verifier and claimant fields bind the exchange to both parties' keys;
// the signature field carries the claimant's signature over the
// verifier's serialized public key, proving a prior registration.
type payload struct {
	Nonce     string `json:"nonce"`
	CreatedAt int64  `json:"createdAt"`
	Verifier  string `json:"verifier"`
	Claimant  string `json:"claimant"`
	Signature string `json:"signature,omitempty"`
}

// Wallet holds one party's key pair and drives its side of the exchange.
// The same type serves both roles: a server wallet generates and verifies
// challenges, a client wallet solves them.
type Wallet struct {
	pair keys.KeyPair
}

// NewWallet validates the pair and wraps it in a Wallet.
func NewWallet(pair keys.KeyPair) (*Wallet, error) {
	if !pair.Private.IsPrivate() {
		return nil, fmt.Errorf("%w: wallet needs a private key", keys.ErrKeyMismatch)
	}
	if err := pair.Private.Validate(); err != nil {
		return nil, err
	}
	return &Wallet{pair: pair}, nil
}

// PublicKey returns the wallet's shareable key.
func (w *Wallet) PublicKey() keys.RawKey {
	return w.pair.Public
}

// GenerateChallenge encrypts a fresh challenge to the claimant's public
// key. If signature is non-empty it is embedded in the challenge so the
// claimant can confirm it previously registered with this verifier.
func (w *Wallet) GenerateChallenge(claimant keys.RawKey, signature string) (keys.Ciphertext, error) {
	claimant = claimant.PublicKey()
	if err := claimant.Validate(); err != nil {
		return keys.Ciphertext{}, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return keys.Ciphertext{}, err
	}
	body, err := json.Marshal(payload{
		Nonce:     base64.RawURLEncoding.EncodeToString(nonce),
		CreatedAt: time.Now().UnixMilli(),
		Verifier:  keys.Serialize(w.pair.Public),
		Claimant:  keys.Serialize(claimant),
		Signature: signature,
	})
	if err != nil {
		return keys.Ciphertext{}, err
	}

	return w.seal(body, claimant)
}

// SolveOptions adjusts how a challenge is solved.
type SolveOptions struct {
	// Register attaches a fresh signature over the verifier's serialized
	// public key, establishing the signature of record the verifier
	// stores and replays in future challenges.
	Register bool
}

// SolveChallenge decrypts a challenge addressed to this wallet and
// returns the solution envelope, encrypted back to the verifier. It
// refuses challenges addressed to someone else and challenges carrying a
// signature this wallet did not produce, which is how a claimant detects
// a verifier impersonating one it registered with.
func (w *Wallet) SolveChallenge(c keys.Ciphertext, opts SolveOptions) (keys.Ciphertext, error) {
	p, err := w.open(c)
	if err != nil {
		return keys.Ciphertext{}, err
	}

	if p.Claimant != keys.Serialize(w.pair.Public) {
		return keys.Ciphertext{}, fmt.Errorf("%w: challenge addressed to another key", ErrVerification)
	}
	if p.Verifier != keys.Serialize(c.Sender) {
		return keys.Ciphertext{}, fmt.Errorf("%w: verifier does not match challenge sender", ErrVerification)
	}
	if p.Signature != "" && !keys.VerifySig(w.pair.Public, []byte(p.Verifier), p.Signature) {
		return keys.Ciphertext{}, fmt.Errorf("%w: embedded signature is not ours", ErrVerification)
	}

	if opts.Register {
		sig, err := keys.Sign(w.pair.Private, []byte(p.Verifier))
		if err != nil {
			return keys.Ciphertext{}, err
		}
		p.Signature = sig
	}

	body, err := json.Marshal(p)
	if err != nil {
		return keys.Ciphertext{}, err
	}
	return w.seal(body, c.Sender)
}

// Result is what a verified solution proves: the claimant controls
// PublicKey, and Signature (when present) is the claimant's signature
// over this verifier's serialized public key.
type Result struct {
	PublicKey keys.RawKey
	Signature string
}

// VerifyChallenge checks a solution envelope against this wallet. The
// window bounds how old the original challenge may be; nothing is kept
// server side between generate and verify, so the window is the only
// replay bound.
func (w *Wallet) VerifyChallenge(c keys.Ciphertext, window time.Duration) (Result, error) {
	p, err := w.open(c)
	if err != nil {
		return Result{}, err
	}

	if p.Verifier != keys.Serialize(w.pair.Public) {
		return Result{}, fmt.Errorf("%w: solution meant for another verifier", ErrVerification)
	}
	if p.Claimant != keys.Serialize(c.Sender) {
		return Result{}, fmt.Errorf("%w: claimant does not match solution sender", ErrVerification)
	}

	age := time.Since(time.UnixMilli(p.CreatedAt))
	if age < 0 || age > window {
		return Result{}, fmt.Errorf("%w: challenge outside freshness window", ErrVerification)
	}

	if p.Signature != "" && !keys.VerifySig(c.Sender, []byte(p.Verifier), p.Signature) {
		return Result{}, fmt.Errorf("%w: bad signature of record", ErrVerification)
	}

	return Result{PublicKey: c.Sender, Signature: p.Signature}, nil
}

// seal derives a one-off shared key for the recipient and encrypts body.
func (w *Wallet) seal(body []byte, recipient keys.RawKey) (keys.Ciphertext, error) {
	salt, err := keys.NewSalt()
	if err != nil {
		return keys.Ciphertext{}, err
	}
	key, err := keys.DeriveSharedKey(w.pair.Private, recipient, salt)
	if err != nil {
		return keys.Ciphertext{}, err
	}
	return keys.Encrypt(key, body, w.pair.Public, salt)
}

// open derives the shared key from the envelope's sender and salt and
// decrypts. Failures collapse into ErrVerification.
func (w *Wallet) open(c keys.Ciphertext) (payload, error) {
	salt, err := c.SaltBytes()
	if err != nil {
		return payload{}, fmt.Errorf("%w: %v", ErrVerification, err)
	}
	key, err := keys.DeriveSharedKey(w.pair.Private, c.Sender, salt)
	if err != nil {
		return payload{}, fmt.Errorf("%w: %v", ErrVerification, err)
	}
	body, err := keys.Decrypt(key, c)
	if err != nil {
		return payload{}, fmt.Errorf("%w: %v", ErrVerification, err)
	}
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return payload{}, fmt.Errorf("%w: %v", ErrVerification, err)
	}
	return p, nil
}
