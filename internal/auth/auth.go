// Package auth ties the challenge-response handshake to the user store
// and issues session tokens for verified claimants.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ssasy-auth/demo/internal/challenge"
	"github.com/ssasy-auth/demo/internal/keys"
	"github.com/ssasy-auth/demo/internal/model"
	"github.com/ssasy-auth/demo/internal/store"
)

var (
	// ErrAuthentication reports a solution or token that did not verify.
	// It is deliberately opaque about which check failed.
	ErrAuthentication = errors.New("authentication failed")

	ErrInvalidUsername = errors.New("invalid username")
)

const maxUsernameLen = 50

type Service struct {
	users    store.UserStore
	wallet   *challenge.Wallet
	secret   []byte
	tokenTTL time.Duration
	window   time.Duration
}

func NewService(users store.UserStore, wallet *challenge.Wallet, secret []byte, tokenTTL, window time.Duration) *Service {
	return &Service{
		users:    users,
		wallet:   wallet,
		secret:   secret,
		tokenTTL: tokenTTL,
		window:   window,
	}
}

// PublicKey returns the verifier's shareable key.
func (s *Service) PublicKey() keys.RawKey {
	return s.wallet.PublicKey()
}

// Challenge builds an encrypted challenge for the claimant key. If the
// key belongs to a registered user the stored signature of record is
// embedded so the claimant can recognize this verifier.
func (s *Service) Challenge(ctx context.Context, publicKey string) (string, error) {
	claimant, err := keys.Deserialize(publicKey)
	if err != nil {
		return "", err
	}
	claimant = claimant.PublicKey()

	signature := ""
	user, err := s.users.GetUserByPublicKey(ctx, claimant.Crv, claimant.X, claimant.Y)
	switch {
	case err == nil:
		signature = user.Credential.Signature
	case errors.Is(err, store.ErrNotFound):
		// Unknown key, challenge goes out without a signature.
	default:
		return "", err
	}

	ct, err := s.wallet.GenerateChallenge(claimant, signature)
	if err != nil {
		return "", err
	}
	return keys.EncodeCiphertext(ct), nil
}

// Register verifies a solved challenge and creates the user it proves
// ownership for. The solution must carry a signature of record; without
// one there is nothing to embed in future challenges.
func (s *Service) Register(ctx context.Context, publicKey, username, solution string) (model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || len(username) > maxUsernameLen {
		return model.User{}, ErrInvalidUsername
	}

	res, err := s.verify(publicKey, solution)
	if err != nil {
		return model.User{}, err
	}
	if res.Signature == "" {
		return model.User{}, fmt.Errorf("%w: solution carries no signature", ErrAuthentication)
	}

	user := model.User{
		Username: username,
		Credential: model.Credential{
			PublicKey: keys.Serialize(res.PublicKey),
			Crv:       res.PublicKey.Crv,
			X:         res.PublicKey.X,
			Y:         res.PublicKey.Y,
			Signature: res.Signature,
		},
		CreatedAt: time.Now().UTC(),
	}
	id, err := s.users.CreateUser(ctx, &user)
	if err != nil {
		return model.User{}, err
	}
	user.ID = id
	return user, nil
}

// Login verifies a solved challenge and returns the matching user with a
// fresh session token. An unverifiable solution yields ErrAuthentication;
// a verified key with no account yields store.ErrNotFound.
func (s *Service) Login(ctx context.Context, publicKey, solution string) (model.User, string, error) {
	res, err := s.verify(publicKey, solution)
	if err != nil {
		return model.User{}, "", err
	}

	user, err := s.users.GetUserByPublicKey(ctx, res.PublicKey.Crv, res.PublicKey.X, res.PublicKey.Y)
	if err != nil {
		return model.User{}, "", err
	}

	token, err := mintToken(s.secret, user.ID, s.tokenTTL)
	if err != nil {
		return model.User{}, "", err
	}
	return user, token, nil
}

// Authenticate resolves a session token to its user.
func (s *Service) Authenticate(ctx context.Context, token string) (model.User, error) {
	id, err := parseToken(s.secret, token)
	if err != nil {
		return model.User{}, err
	}
	user, err := s.users.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.User{}, fmt.Errorf("%w: unknown subject", ErrAuthentication)
		}
		return model.User{}, err
	}
	return user, nil
}

// verify checks the solution and binds it to the key the request claims
// to authenticate. A solution proving a different key is rejected even
// when it verifies on its own.
func (s *Service) verify(publicKey, solution string) (challenge.Result, error) {
	claimed, err := keys.Deserialize(publicKey)
	if err != nil {
		return challenge.Result{}, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	ct, err := keys.DecodeCiphertext(solution)
	if err != nil {
		return challenge.Result{}, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	res, err := s.wallet.VerifyChallenge(ct, s.window)
	if err != nil {
		return challenge.Result{}, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	if res.PublicKey != claimed.PublicKey() {
		return challenge.Result{}, fmt.Errorf("%w: solution proves a different key", ErrAuthentication)
	}
	return res, nil
}
