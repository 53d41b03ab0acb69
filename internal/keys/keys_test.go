package keys

import (
	"errors"
	"testing"
)

func TestKeyRoundTrip(t *testing.T) {
	for _, crv := range []string{CurveP256, CurveSecp256k1} {
		pair, err := GenerateKeyPair(crv)
		if err != nil {
			t.Fatalf("generate %s: %v", crv, err)
		}

		pub, err := Deserialize(Serialize(pair.Public))
		if err != nil {
			t.Fatalf("deserialize public %s: %v", crv, err)
		}
		if pub != pair.Public {
			t.Fatalf("public round trip mismatch: %+v != %+v", pub, pair.Public)
		}

		priv, err := Deserialize(Serialize(pair.Private))
		if err != nil {
			t.Fatalf("deserialize private %s: %v", crv, err)
		}
		if priv != pair.Private {
			t.Fatalf("private round trip mismatch: %+v != %+v", priv, pair.Private)
		}
	}
}

func TestSerializeDeterministic(t *testing.T) {
	pair, err := GenerateKeyPair(CurveP256)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if Serialize(pair.Public) != Serialize(pair.Public) {
		t.Fatal("serialization not deterministic")
	}
}

func TestDeserializeRejectsMalformed(t *testing.T) {
	pair, err := GenerateKeyPair(CurveP256)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	cases := map[string]string{
		"empty":            "",
		"wrong scheme":     "https://key?type=public-key",
		"missing fields":   "ssasy://key?type=public-key&crv=P-256",
		"bad coordinates":  "ssasy://key?type=public-key&crv=P-256&x=AAAA&y=BBBB",
		"unknown curve":    "ssasy://key?type=public-key&crv=P-521&x=" + pair.Public.X + "&y=" + pair.Public.Y,
		"private no d":     "ssasy://key?type=private-key&crv=P-256&x=" + pair.Public.X + "&y=" + pair.Public.Y,
		"public with d":    Serialize(pair.Public) + "&d=" + pair.Private.D,
		"off-curve point":  "ssasy://key?type=public-key&crv=P-256&x=" + pair.Public.X + "&y=" + pair.Public.X,
		"unknown key type": "ssasy://key?type=session-key&crv=P-256&x=" + pair.Public.X + "&y=" + pair.Public.Y,
	}
	for name, input := range cases {
		if _, err := Deserialize(input); !errors.Is(err, ErrDecode) {
			t.Errorf("%s: expected ErrDecode, got %v", name, err)
		}
	}
}

func TestSharedKeyCommutative(t *testing.T) {
	for _, crv := range []string{CurveP256, CurveSecp256k1} {
		a, err := GenerateKeyPair(crv)
		if err != nil {
			t.Fatalf("generate a: %v", err)
		}
		b, err := GenerateKeyPair(crv)
		if err != nil {
			t.Fatalf("generate b: %v", err)
		}
		salt, err := NewSalt()
		if err != nil {
			t.Fatalf("salt: %v", err)
		}

		k1, err := DeriveSharedKey(a.Private, b.Public, salt)
		if err != nil {
			t.Fatalf("derive a->b: %v", err)
		}
		k2, err := DeriveSharedKey(b.Private, a.Public, salt)
		if err != nil {
			t.Fatalf("derive b->a: %v", err)
		}
		if string(k1) != string(k2) {
			t.Fatalf("%s: shared keys differ", crv)
		}
		if len(k1) != SharedKeySize {
			t.Fatalf("%s: unexpected key size %d", crv, len(k1))
		}
	}
}

func TestSharedKeySaltMatters(t *testing.T) {
	a, _ := GenerateKeyPair(CurveP256)
	b, _ := GenerateKeyPair(CurveP256)
	s1, _ := NewSalt()
	s2, _ := NewSalt()

	k1, err := DeriveSharedKey(a.Private, b.Public, s1)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	k2, err := DeriveSharedKey(a.Private, b.Public, s2)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if string(k1) == string(k2) {
		t.Fatal("different salts produced the same key")
	}
}

func TestSharedKeyCurveMismatch(t *testing.T) {
	a, _ := GenerateKeyPair(CurveP256)
	b, _ := GenerateKeyPair(CurveSecp256k1)
	salt, _ := NewSalt()

	if _, err := DeriveSharedKey(a.Private, b.Public, salt); !errors.Is(err, ErrKeyMismatch) {
		t.Fatalf("expected ErrKeyMismatch, got %v", err)
	}
	if _, err := DeriveSharedKey(a.Public, b.Public, salt); !errors.Is(err, ErrKeyMismatch) {
		t.Fatalf("expected ErrKeyMismatch for public first arg, got %v", err)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	a, _ := GenerateKeyPair(CurveP256)
	b, _ := GenerateKeyPair(CurveP256)
	salt, _ := NewSalt()
	key, err := DeriveSharedKey(a.Private, b.Public, salt)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}

	plaintext := []byte("attack at dawn")
	ct, err := Encrypt(key, plaintext, a.Public, salt)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	decoded, err := DecodeCiphertext(EncodeCiphertext(ct))
	if err != nil {
		t.Fatalf("ciphertext round trip: %v", err)
	}
	if decoded != ct {
		t.Fatalf("ciphertext mismatch after round trip")
	}

	out, err := Decrypt(key, decoded)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if string(out) != string(plaintext) {
		t.Fatalf("plaintext mismatch: %q", out)
	}
}

func TestDecryptFailsClosed(t *testing.T) {
	a, _ := GenerateKeyPair(CurveP256)
	b, _ := GenerateKeyPair(CurveP256)
	salt, _ := NewSalt()
	key, _ := DeriveSharedKey(a.Private, b.Public, salt)

	ct, err := Encrypt(key, []byte("secret"), a.Public, salt)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	// Wrong key.
	c, _ := GenerateKeyPair(CurveP256)
	wrongKey, _ := DeriveSharedKey(c.Private, b.Public, salt)
	if _, err := Decrypt(wrongKey, ct); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("wrong key: expected ErrDecrypt, got %v", err)
	}

	// Bit flip in the data.
	raw, _ := b64decode(ct.Data)
	raw[0] ^= 0x01
	tampered := ct
	tampered.Data = b64(raw)
	if _, err := Decrypt(key, tampered); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("tampered: expected ErrDecrypt, got %v", err)
	}

	// Rewritten sender. The envelope sender is authenticated data, so
	// swapping it must break decryption even when the symmetric key is
	// unchanged.
	swapped := ct
	swapped.Sender = c.Public
	if _, err := Decrypt(key, swapped); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("swapped sender: expected ErrDecrypt, got %v", err)
	}
}

func TestDecodeCiphertextRejectsMalformed(t *testing.T) {
	a, _ := GenerateKeyPair(CurveP256)
	b, _ := GenerateKeyPair(CurveP256)
	salt, _ := NewSalt()
	key, _ := DeriveSharedKey(a.Private, b.Public, salt)
	ct, _ := Encrypt(key, []byte("x"), a.Public, salt)
	good := EncodeCiphertext(ct)

	cases := map[string]string{
		"empty":        "",
		"key uri":      Serialize(a.Public),
		"missing iv":   "ssasy://ciphertext?data=" + ct.Data + "&salt=" + ct.Salt,
		"short iv":     "ssasy://ciphertext?data=" + ct.Data + "&iv=AAAA&salt=" + ct.Salt + "&sender=x",
		"bad sender":   "ssasy://ciphertext?data=" + ct.Data + "&iv=" + ct.IV + "&salt=" + ct.Salt + "&sender=nope",
		"truncated":    good[:len(good)/2],
	}
	for name, input := range cases {
		if _, err := DecodeCiphertext(input); !errors.Is(err, ErrDecode) {
			t.Errorf("%s: expected ErrDecode, got %v", name, err)
		}
	}
}

func TestSignVerify(t *testing.T) {
	for _, crv := range []string{CurveP256, CurveSecp256k1} {
		pair, err := GenerateKeyPair(crv)
		if err != nil {
			t.Fatalf("generate %s: %v", crv, err)
		}
		msg := []byte("register me")

		sig, err := Sign(pair.Private, msg)
		if err != nil {
			t.Fatalf("sign %s: %v", crv, err)
		}
		if !VerifySig(pair.Public, msg, sig) {
			t.Fatalf("%s: valid signature rejected", crv)
		}
		if VerifySig(pair.Public, []byte("other message"), sig) {
			t.Fatalf("%s: signature verified against wrong message", crv)
		}

		other, _ := GenerateKeyPair(crv)
		if VerifySig(other.Public, msg, sig) {
			t.Fatalf("%s: signature verified with wrong key", crv)
		}
	}
}
