package keys

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	keyPrefix        = "ssasy://key?"
	ciphertextPrefix = "ssasy://ciphertext?"
)

// Serialize renders k as an ssasy key URI. The parameter order is fixed
// so the same key always serializes to the same string, allowing string
// equality checks across processes.
func Serialize(k RawKey) string {
	var b strings.Builder
	b.WriteString(keyPrefix)
	b.WriteString("type=")
	b.WriteString(url.QueryEscape(k.Type))
	b.WriteString("&crv=")
	b.WriteString(url.QueryEscape(k.Crv))
	b.WriteString("&x=")
	b.WriteString(k.X)
	b.WriteString("&y=")
	b.WriteString(k.Y)
	if k.D != "" {
		b.WriteString("&d=")
		b.WriteString(k.D)
	}
	return b.String()
}

// Deserialize parses an ssasy key URI, validating the key material. It
// fails with ErrDecode on anything malformed and never returns a partial
// key.
func Deserialize(s string) (RawKey, error) {
	if !strings.HasPrefix(s, keyPrefix) {
		return RawKey{}, fmt.Errorf("%w: not an ssasy key uri", ErrDecode)
	}
	values, err := url.ParseQuery(strings.TrimPrefix(s, keyPrefix))
	if err != nil {
		return RawKey{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	k := RawKey{
		Type: values.Get("type"),
		Crv:  values.Get("crv"),
		X:    values.Get("x"),
		Y:    values.Get("y"),
		D:    values.Get("d"),
	}
	if k.Type == "" || k.Crv == "" || k.X == "" || k.Y == "" {
		return RawKey{}, fmt.Errorf("%w: missing key fields", ErrDecode)
	}
	if k.Type == TypePrivate && k.D == "" {
		return RawKey{}, fmt.Errorf("%w: private key without scalar", ErrDecode)
	}
	if k.Type == TypePublic && k.D != "" {
		return RawKey{}, fmt.Errorf("%w: public key carrying scalar", ErrDecode)
	}
	if err := k.Validate(); err != nil {
		return RawKey{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return k, nil
}

// Ciphertext is the envelope for an encrypted payload. The sender's
// public key travels with it so the receiver can derive the shared key;
// the salt feeds the HKDF step of that derivation.
type Ciphertext struct {
	Data   string `json:"data"`
	IV     string `json:"iv"`
	Salt   string `json:"salt"`
	Sender RawKey `json:"sender"`
}

// SaltBytes decodes the envelope salt for shared-key derivation.
func (c Ciphertext) SaltBytes() ([]byte, error) {
	salt, err := b64decode(c.Salt)
	if err != nil || len(salt) != saltSize {
		return nil, fmt.Errorf("%w: bad salt", ErrDecode)
	}
	return salt, nil
}

// EncodeCiphertext renders c as an ssasy ciphertext URI, deterministic
// like Serialize.
func EncodeCiphertext(c Ciphertext) string {
	var b strings.Builder
	b.WriteString(ciphertextPrefix)
	b.WriteString("data=")
	b.WriteString(c.Data)
	b.WriteString("&iv=")
	b.WriteString(c.IV)
	b.WriteString("&salt=")
	b.WriteString(c.Salt)
	b.WriteString("&sender=")
	b.WriteString(url.QueryEscape(Serialize(c.Sender)))
	return b.String()
}

// DecodeCiphertext parses an ssasy ciphertext URI. The embedded sender
// key must be a valid public key; the IV and salt must decode to their
// expected sizes. Fails with ErrDecode, never partial results.
func DecodeCiphertext(s string) (Ciphertext, error) {
	if !strings.HasPrefix(s, ciphertextPrefix) {
		return Ciphertext{}, fmt.Errorf("%w: not an ssasy ciphertext uri", ErrDecode)
	}
	values, err := url.ParseQuery(strings.TrimPrefix(s, ciphertextPrefix))
	if err != nil {
		return Ciphertext{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	c := Ciphertext{
		Data: values.Get("data"),
		IV:   values.Get("iv"),
		Salt: values.Get("salt"),
	}
	if c.Data == "" || c.IV == "" || c.Salt == "" || values.Get("sender") == "" {
		return Ciphertext{}, fmt.Errorf("%w: missing ciphertext fields", ErrDecode)
	}
	if data, err := b64decode(c.Data); err != nil || len(data) == 0 {
		return Ciphertext{}, fmt.Errorf("%w: bad ciphertext data", ErrDecode)
	}
	if iv, err := b64decode(c.IV); err != nil || len(iv) != ivSize {
		return Ciphertext{}, fmt.Errorf("%w: bad iv", ErrDecode)
	}
	if salt, err := b64decode(c.Salt); err != nil || len(salt) != saltSize {
		return Ciphertext{}, fmt.Errorf("%w: bad salt", ErrDecode)
	}
	sender, err := Deserialize(values.Get("sender"))
	if err != nil {
		return Ciphertext{}, err
	}
	if sender.IsPrivate() {
		return Ciphertext{}, fmt.Errorf("%w: ciphertext sender must be a public key", ErrDecode)
	}
	c.Sender = sender
	return c, nil
}
