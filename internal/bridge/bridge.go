// Package bridge implements the message protocol between a page and the
// out-of-process signing agent holding the user's private key. The
// transport is a broadcast channel with no delivery guarantee, so every
// request carries a correlation id and callers bound the wait with a
// context. The agent only answers origins it was configured to trust.
package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ssasy-auth/demo/internal/keys"
)

// ErrBridge covers every bridge failure: no agent, a declined request,
// or a malformed response.
var ErrBridge = errors.New("bridge error")

type Kind string

const (
	KindRequestPing       Kind = "request-ping"
	KindResponsePing      Kind = "response-ping"
	KindRequestPublicKey  Kind = "request-public-key"
	KindResponsePublicKey Kind = "response-public-key"
	KindRequestSolution   Kind = "request-solution"
	KindResponseSolution  Kind = "response-solution"
	KindResponseError     Kind = "response-error"
)

// Mode tells the agent whether a solution establishes a new registration
// or proves an existing one.
type Mode string

const (
	ModeRegistration Mode = "registration"
	ModeLogin        Mode = "login"
)

// Message is one frame on the channel. ID correlates a response with its
// request; Origin names the page that sent a request. Payload carries a
// key or ciphertext URI depending on Kind.
type Message struct {
	ID      string `json:"id"`
	Kind    Kind   `json:"kind"`
	Origin  string `json:"origin,omitempty"`
	Mode    Mode   `json:"mode,omitempty"`
	Payload string `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Messenger is the page side of the bridge.
type Messenger struct {
	ch     Channel
	origin string
}

func NewMessenger(ch Channel, origin string) *Messenger {
	return &Messenger{ch: ch, origin: origin}
}

// Ping reports whether an agent is listening. It never fails; an absent
// or unwilling agent is simply false.
func (m *Messenger) Ping(ctx context.Context) bool {
	_, err := m.request(ctx, Message{Kind: KindRequestPing}, KindResponsePing)
	return err == nil
}

// RequestPublicKey asks the agent for the user's public key.
func (m *Messenger) RequestPublicKey(ctx context.Context, mode Mode) (keys.RawKey, error) {
	resp, err := m.request(ctx, Message{Kind: KindRequestPublicKey, Mode: mode}, KindResponsePublicKey)
	if err != nil {
		return keys.RawKey{}, err
	}
	key, err := keys.Deserialize(resp.Payload)
	if err != nil {
		return keys.RawKey{}, fmt.Errorf("%w: agent returned a bad key: %v", ErrBridge, err)
	}
	return key, nil
}

// RequestSolution forwards an encrypted challenge to the agent and waits
// for the solved ciphertext.
func (m *Messenger) RequestSolution(ctx context.Context, mode Mode, encryptedChallenge string) (string, error) {
	resp, err := m.request(ctx, Message{Kind: KindRequestSolution, Mode: mode, Payload: encryptedChallenge}, KindResponseSolution)
	if err != nil {
		return "", err
	}
	if resp.Payload == "" {
		return "", fmt.Errorf("%w: agent returned no solution", ErrBridge)
	}
	return resp.Payload, nil
}

// request publishes one request and waits for the response carrying the
// same correlation id. Frames with other ids, including our own request
// echoed back by the broadcast channel, are skipped.
func (m *Messenger) request(ctx context.Context, req Message, want Kind) (Message, error) {
	req.ID = uuid.NewString()
	req.Origin = m.origin

	sub, cancel := m.ch.Subscribe()
	defer cancel()

	if err := m.ch.Publish(req); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrBridge, err)
	}

	for {
		select {
		case <-ctx.Done():
			return Message{}, fmt.Errorf("%w: no response: %v", ErrBridge, ctx.Err())
		case msg, ok := <-sub:
			if !ok {
				return Message{}, fmt.Errorf("%w: channel closed", ErrBridge)
			}
			if msg.ID != req.ID || msg.Kind == req.Kind {
				continue
			}
			switch msg.Kind {
			case want:
				return msg, nil
			case KindResponseError:
				return Message{}, fmt.Errorf("%w: agent declined: %s", ErrBridge, msg.Error)
			default:
				return Message{}, fmt.Errorf("%w: unexpected response kind %q", ErrBridge, msg.Kind)
			}
		}
	}
}
