// Package client provides a Go client for the ssasy demo API, driving
// the full challenge-response handshake with a local wallet or an
// external signing agent reached over the bridge.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ssasy-auth/demo/internal/bridge"
	"github.com/ssasy-auth/demo/internal/challenge"
	"github.com/ssasy-auth/demo/internal/keys"
	"github.com/ssasy-auth/demo/internal/model"
)

// Solver produces the claimant's public key and challenge solutions.
// The register flag tells the key holder whether the solution
// establishes a new registration or proves an existing one.
type Solver interface {
	PublicKey(register bool) (keys.RawKey, error)
	Solve(encodedChallenge string, register bool) (string, error)
}

// WalletSolver solves challenges with an in-process wallet.
type WalletSolver struct {
	Wallet *challenge.Wallet
}

func (s WalletSolver) PublicKey(bool) (keys.RawKey, error) {
	return s.Wallet.PublicKey(), nil
}

func (s WalletSolver) Solve(encodedChallenge string, register bool) (string, error) {
	ct, err := keys.DecodeCiphertext(encodedChallenge)
	if err != nil {
		return "", fmt.Errorf("decode challenge: %w", err)
	}
	sol, err := s.Wallet.SolveChallenge(ct, challenge.SolveOptions{Register: register})
	if err != nil {
		return "", fmt.Errorf("solve challenge: %w", err)
	}
	return keys.EncodeCiphertext(sol), nil
}

// BridgeSolver delegates key access to a signing agent over the bridge.
// The private key never enters this process.
type BridgeSolver struct {
	Messenger *bridge.Messenger
	Timeout   time.Duration
}

func (s BridgeSolver) PublicKey(register bool) (keys.RawKey, error) {
	ctx, cancel := s.bound()
	defer cancel()
	return s.Messenger.RequestPublicKey(ctx, bridgeMode(register))
}

func (s BridgeSolver) Solve(encodedChallenge string, register bool) (string, error) {
	ctx, cancel := s.bound()
	defer cancel()
	return s.Messenger.RequestSolution(ctx, bridgeMode(register), encodedChallenge)
}

func (s BridgeSolver) bound() (context.Context, context.CancelFunc) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(context.Background(), timeout)
}

func bridgeMode(register bool) bridge.Mode {
	if register {
		return bridge.ModeRegistration
	}
	return bridge.ModeLogin
}

// Client talks to one demo server. Token is set by Login and sent on
// authenticated requests.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Token      string
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// NewWallet generates a fresh key pair on the named curve and wraps it
// in a wallet the client can authenticate with.
func NewWallet(crv string) (*challenge.Wallet, error) {
	pair, err := keys.GenerateKeyPair(crv)
	if err != nil {
		return nil, err
	}
	return challenge.NewWallet(pair)
}

// ServerPublicKey fetches the server's public key from the index route.
func (c *Client) ServerPublicKey() (keys.RawKey, error) {
	var result struct {
		PublicKey string `json:"publicKey"`
		Docs      string `json:"docs"`
		Message   string `json:"message"`
	}
	if err := c.get("/", &result); err != nil {
		return keys.RawKey{}, err
	}
	return keys.Deserialize(result.PublicKey)
}

// GetChallenge requests a challenge for the given public key.
func (c *Client) GetChallenge(publicKey keys.RawKey) (string, error) {
	var result struct {
		Ciphertext string `json:"ciphertext"`
	}
	err := c.post("/auth/challenge", map[string]string{
		"publicKey": keys.Serialize(publicKey),
	}, &result)
	if err != nil {
		return "", err
	}
	return result.Ciphertext, nil
}

// solve fetches a challenge for pub and has the solver answer it.
func (c *Client) solve(s Solver, pub keys.RawKey, register bool) (string, error) {
	encoded, err := c.GetChallenge(pub)
	if err != nil {
		return "", fmt.Errorf("get challenge: %w", err)
	}
	return s.Solve(encoded, register)
}

// Register runs the registration handshake with a local wallet.
func (c *Client) Register(wallet *challenge.Wallet, username string) (model.User, error) {
	return c.RegisterWith(WalletSolver{Wallet: wallet}, username)
}

// RegisterWith runs the registration handshake with solutions produced
// by the solver, and creates a user.
func (c *Client) RegisterWith(s Solver, username string) (model.User, error) {
	pub, err := s.PublicKey(true)
	if err != nil {
		return model.User{}, err
	}
	solution, err := c.solve(s, pub, true)
	if err != nil {
		return model.User{}, err
	}
	var result struct {
		User model.User `json:"user"`
	}
	err = c.post("/auth/register", map[string]string{
		"publicKey": keys.Serialize(pub),
		"username":  username,
		"challenge": solution,
	}, &result)
	if err != nil {
		return model.User{}, err
	}
	return result.User, nil
}

// Login runs the login handshake with a local wallet.
func (c *Client) Login(wallet *challenge.Wallet) (model.User, error) {
	return c.LoginWith(WalletSolver{Wallet: wallet})
}

// LoginWith runs the login handshake with solutions produced by the
// solver and stores the session token on the client.
func (c *Client) LoginWith(s Solver) (model.User, error) {
	pub, err := s.PublicKey(false)
	if err != nil {
		return model.User{}, err
	}
	solution, err := c.solve(s, pub, false)
	if err != nil {
		return model.User{}, err
	}
	var result struct {
		User  model.User `json:"user"`
		Token string     `json:"token"`
	}
	err = c.post("/auth/login", map[string]string{
		"publicKey": keys.Serialize(pub),
		"challenge": solution,
	}, &result)
	if err != nil {
		return model.User{}, err
	}
	c.Token = result.Token
	return result.User, nil
}

// PostThought publishes a thought. Requires a prior Login.
func (c *Client) PostThought(text string) (model.Thought, error) {
	var result struct {
		Thought model.Thought `json:"thought"`
	}
	if err := c.post("/thoughts", map[string]string{"text": text}, &result); err != nil {
		return model.Thought{}, err
	}
	return result.Thought, nil
}

func (c *Client) GetThoughts() ([]model.Thought, error) {
	var result struct {
		Thoughts []model.Thought `json:"thoughts"`
	}
	if err := c.get("/thoughts", &result); err != nil {
		return nil, err
	}
	return result.Thoughts, nil
}

func (c *Client) GetThought(id int64) (model.Thought, error) {
	var result struct {
		Thought model.Thought `json:"thought"`
	}
	if err := c.get(fmt.Sprintf("/thoughts/%d", id), &result); err != nil {
		return model.Thought{}, err
	}
	return result.Thought, nil
}

// GetUserThoughts lists one user's thoughts, newest first.
func (c *Client) GetUserThoughts(userID int64) ([]model.Thought, error) {
	var result struct {
		Thoughts []model.Thought `json:"thoughts"`
	}
	if err := c.get(fmt.Sprintf("/users/%d/thoughts", userID), &result); err != nil {
		return nil, err
	}
	return result.Thoughts, nil
}

func (c *Client) GetUsers() ([]model.User, error) {
	var result struct {
		Users []model.User `json:"users"`
	}
	if err := c.get("/users", &result); err != nil {
		return nil, err
	}
	return result.Users, nil
}

func (c *Client) GetUser(id int64) (model.User, error) {
	var result struct {
		User model.User `json:"user"`
	}
	if err := c.get(fmt.Sprintf("/users/%d", id), &result); err != nil {
		return model.User{}, err
	}
	return result.User, nil
}

// GetUserByCoordinates looks up a user by public key coordinates.
func (c *Client) GetUserByCoordinates(x, y string) (model.User, error) {
	var result struct {
		User model.User `json:"user"`
	}
	if err := c.get(fmt.Sprintf("/users/%s/%s", x, y), &result); err != nil {
		return model.User{}, err
	}
	return result.User, nil
}

func (c *Client) get(path string, dest any) error {
	req, err := http.NewRequest(http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, dest)
}

func (c *Client) post(path string, payload, dest any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, dest)
}

func (c *Client) do(req *http.Request, dest any) error {
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Message == "" {
			return fmt.Errorf("server returned %d", resp.StatusCode)
		}
		return errors.New(apiErr.Message)
	}
	if dest == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

// TestHelper provides utilities for creating authenticated clients in tests.
type TestHelper struct {
	BaseURL string
}

// NewTestHelper creates a new test helper for the given base URL.
func NewTestHelper(baseURL string) *TestHelper {
	return &TestHelper{BaseURL: baseURL}
}

// CreateAuthenticatedClient registers a fresh key pair under the given
// name and returns a logged-in client with its wallet.
func (h *TestHelper) CreateAuthenticatedClient(name string) (*Client, *challenge.Wallet, error) {
	wallet, err := NewWallet(keys.CurveP256)
	if err != nil {
		return nil, nil, fmt.Errorf("generate wallet: %w", err)
	}
	c := New(h.BaseURL)
	if _, err := c.Register(wallet, name); err != nil {
		return nil, nil, fmt.Errorf("register: %w", err)
	}
	if _, err := c.Login(wallet); err != nil {
		return nil, nil, fmt.Errorf("login: %w", err)
	}
	return c, wallet, nil
}

// GetToken registers a user and returns just the bearer token.
func (h *TestHelper) GetToken(name string) (string, error) {
	c, _, err := h.CreateAuthenticatedClient(name)
	if err != nil {
		return "", err
	}
	return c.Token, nil
}
