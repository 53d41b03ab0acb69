package challenge

import (
	"errors"
	"testing"
	"time"

	"github.com/ssasy-auth/demo/internal/keys"
)

func newWallet(t *testing.T, crv string) *Wallet {
	t.Helper()
	pair, err := keys.GenerateKeyPair(crv)
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}
	w, err := NewWallet(pair)
	if err != nil {
		t.Fatalf("new wallet: %v", err)
	}
	return w
}

func TestRegistrationHandshake(t *testing.T) {
	for _, crv := range []string{keys.CurveP256, keys.CurveSecp256k1} {
		verifier := newWallet(t, crv)
		claimant := newWallet(t, crv)

		ch, err := verifier.GenerateChallenge(claimant.PublicKey(), "")
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		sol, err := claimant.SolveChallenge(ch, SolveOptions{Register: true})
		if err != nil {
			t.Fatalf("solve: %v", err)
		}
		res, err := verifier.VerifyChallenge(sol, 5*time.Minute)
		if err != nil {
			t.Fatalf("verify: %v", err)
		}

		if res.PublicKey != claimant.PublicKey() {
			t.Fatalf("%s: verified key is not the claimant's", crv)
		}
		if res.Signature == "" {
			t.Fatalf("%s: registration produced no signature of record", crv)
		}
		verifierURI := keys.Serialize(verifier.PublicKey())
		if !keys.VerifySig(claimant.PublicKey(), []byte(verifierURI), res.Signature) {
			t.Fatalf("%s: signature of record does not cover the verifier key", crv)
		}
	}
}

func TestLoginHandshakeWithSignatureOfRecord(t *testing.T) {
	verifier := newWallet(t, keys.CurveP256)
	claimant := newWallet(t, keys.CurveP256)

	// Registration establishes the signature the verifier stores.
	ch, _ := verifier.GenerateChallenge(claimant.PublicKey(), "")
	sol, _ := claimant.SolveChallenge(ch, SolveOptions{Register: true})
	res, err := verifier.VerifyChallenge(sol, 5*time.Minute)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	// Login embeds the stored signature; the claimant accepts it as its
	// own and the verifier accepts the solution.
	ch, err = verifier.GenerateChallenge(claimant.PublicKey(), res.Signature)
	if err != nil {
		t.Fatalf("generate login challenge: %v", err)
	}
	sol, err = claimant.SolveChallenge(ch, SolveOptions{})
	if err != nil {
		t.Fatalf("solve login challenge: %v", err)
	}
	if _, err := verifier.VerifyChallenge(sol, 5*time.Minute); err != nil {
		t.Fatalf("verify login solution: %v", err)
	}
}

func TestSolveRejectsForeignSignature(t *testing.T) {
	verifier := newWallet(t, keys.CurveP256)
	claimant := newWallet(t, keys.CurveP256)
	other := newWallet(t, keys.CurveP256)

	// A signature produced by a different key must alarm the claimant.
	forged, err := keys.Sign(other.pair.Private, []byte(keys.Serialize(verifier.PublicKey())))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	ch, err := verifier.GenerateChallenge(claimant.PublicKey(), forged)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := claimant.SolveChallenge(ch, SolveOptions{}); !errors.Is(err, ErrVerification) {
		t.Fatalf("expected ErrVerification, got %v", err)
	}
}

func TestSolveRejectsMisaddressedChallenge(t *testing.T) {
	verifier := newWallet(t, keys.CurveP256)
	claimant := newWallet(t, keys.CurveP256)
	bystander := newWallet(t, keys.CurveP256)

	ch, err := verifier.GenerateChallenge(claimant.PublicKey(), "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := bystander.SolveChallenge(ch, SolveOptions{}); !errors.Is(err, ErrVerification) {
		t.Fatalf("expected ErrVerification, got %v", err)
	}
}

func TestVerifyRejectsStaleSolution(t *testing.T) {
	verifier := newWallet(t, keys.CurveP256)
	claimant := newWallet(t, keys.CurveP256)

	ch, _ := verifier.GenerateChallenge(claimant.PublicKey(), "")
	sol, err := claimant.SolveChallenge(ch, SolveOptions{})
	if err != nil {
		t.Fatalf("solve: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	if _, err := verifier.VerifyChallenge(sol, time.Millisecond); !errors.Is(err, ErrVerification) {
		t.Fatalf("expected ErrVerification for stale solution, got %v", err)
	}
}

func TestVerifyRejectsUnsolvedChallenge(t *testing.T) {
	verifier := newWallet(t, keys.CurveP256)
	claimant := newWallet(t, keys.CurveP256)

	// Feeding the verifier its own challenge back must fail: the
	// envelope is addressed to the claimant, not solved by them.
	ch, err := verifier.GenerateChallenge(claimant.PublicKey(), "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := verifier.VerifyChallenge(ch, 5*time.Minute); !errors.Is(err, ErrVerification) {
		t.Fatalf("expected ErrVerification, got %v", err)
	}
}

func TestVerifyRejectsForgedSenderReplay(t *testing.T) {
	// An attacker who only knows the claimant's public key asks for a
	// challenge and resubmits it with Sender rewritten to the claimant's
	// key. ECDH commutativity would let the verifier re-derive the very
	// key it encrypted with, so the sender must be covered by the AEAD
	// and the forgery must die at decryption.
	verifier := newWallet(t, keys.CurveP256)
	claimant := newWallet(t, keys.CurveP256)

	sig, err := keys.Sign(claimant.pair.Private, []byte(keys.Serialize(verifier.PublicKey())))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	ch, err := verifier.GenerateChallenge(claimant.PublicKey(), sig)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	forged := ch
	forged.Sender = claimant.PublicKey()
	if _, err := verifier.VerifyChallenge(forged, 5*time.Minute); !errors.Is(err, ErrVerification) {
		t.Fatalf("forged sender: expected ErrVerification, got %v", err)
	}
}

func TestVerifyRejectsTamperedSolution(t *testing.T) {
	verifier := newWallet(t, keys.CurveP256)
	claimant := newWallet(t, keys.CurveP256)
	intruder := newWallet(t, keys.CurveP256)

	ch, _ := verifier.GenerateChallenge(claimant.PublicKey(), "")
	sol, err := claimant.SolveChallenge(ch, SolveOptions{})
	if err != nil {
		t.Fatalf("solve: %v", err)
	}

	// Swapping the sender leaves the symmetric key derivable but the
	// authenticated data no longer matches the envelope.
	sol.Sender = intruder.PublicKey()
	if _, err := verifier.VerifyChallenge(sol, 5*time.Minute); !errors.Is(err, ErrVerification) {
		t.Fatalf("expected ErrVerification, got %v", err)
	}
}
