package bridge

import (
	"context"

	"github.com/ssasy-auth/demo/internal/challenge"
	"github.com/ssasy-auth/demo/internal/keys"
)

// Agent is the key-holder side of the bridge. It answers requests from
// trusted origins by driving a wallet; requests from any other origin
// are dropped without a reply, so an untrusted page cannot even learn
// that an agent is installed.
type Agent struct {
	ch      Channel
	wallet  *challenge.Wallet
	origins map[string]bool
}

func NewAgent(ch Channel, wallet *challenge.Wallet, trustedOrigins []string) *Agent {
	origins := make(map[string]bool, len(trustedOrigins))
	for _, o := range trustedOrigins {
		origins[o] = true
	}
	return &Agent{ch: ch, wallet: wallet, origins: origins}
}

// Run serves requests until ctx is done.
func (a *Agent) Run(ctx context.Context) error {
	sub, cancel := a.ch.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-sub:
			if !ok {
				return nil
			}
			a.handle(msg)
		}
	}
}

func (a *Agent) handle(msg Message) {
	switch msg.Kind {
	case KindRequestPing, KindRequestPublicKey, KindRequestSolution:
	default:
		return
	}
	if !a.origins[msg.Origin] {
		return
	}

	switch msg.Kind {
	case KindRequestPing:
		_ = a.ch.Publish(Message{ID: msg.ID, Kind: KindResponsePing})
	case KindRequestPublicKey:
		_ = a.ch.Publish(Message{
			ID:      msg.ID,
			Kind:    KindResponsePublicKey,
			Payload: keys.Serialize(a.wallet.PublicKey()),
		})
	case KindRequestSolution:
		a.solve(msg)
	}
}

func (a *Agent) solve(msg Message) {
	ct, err := keys.DecodeCiphertext(msg.Payload)
	if err != nil {
		_ = a.ch.Publish(Message{ID: msg.ID, Kind: KindResponseError, Error: "malformed challenge"})
		return
	}
	sol, err := a.wallet.SolveChallenge(ct, challenge.SolveOptions{Register: msg.Mode == ModeRegistration})
	if err != nil {
		// The reason stays with the agent. The page only learns the
		// request was declined.
		_ = a.ch.Publish(Message{ID: msg.ID, Kind: KindResponseError, Error: "challenge declined"})
		return
	}
	_ = a.ch.Publish(Message{ID: msg.ID, Kind: KindResponseSolution, Payload: keys.EncodeCiphertext(sol)})
}
