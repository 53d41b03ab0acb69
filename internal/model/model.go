package model

import "time"

// Credential is the authentication material bound to a user at
// registration. PublicKey is the serialized ssasy key URI; Crv, X and Y
// duplicate the key's coordinates for directory lookups. Signature is the
// user's signature-of-record, embedded in later challenges so the signing
// agent can detect a verifier it never registered with.
type Credential struct {
	PublicKey string `json:"publicKey"`
	Crv       string `json:"-"`
	X         string `json:"-"`
	Y         string `json:"-"`
	Signature string `json:"signature,omitempty"`
}

type User struct {
	ID         int64      `json:"id"`
	Username   string     `json:"username"`
	Credential Credential `json:"credential"`
	CreatedAt  time.Time  `json:"createdAt"`
}

type Thought struct {
	ID         int64     `json:"id"`
	Text       string    `json:"text"`
	AuthorID   int64     `json:"authorId"`
	AuthorName string    `json:"authorName,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}
