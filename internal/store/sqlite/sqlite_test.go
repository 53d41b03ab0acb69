package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ssasy-auth/demo/internal/model"
	"github.com/ssasy-auth/demo/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	st, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return st
}

func testUser(name, crv, x, y string) *model.User {
	return &model.User{
		Username: name,
		Credential: model.Credential{
			PublicKey: "ssasy://key?type=public-key&crv=" + crv + "&x=" + x + "&y=" + y,
			Crv:       crv,
			X:         x,
			Y:         y,
			Signature: "sig-" + name,
		},
		CreatedAt: time.Now(),
	}
}

func TestUserLifecycle(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	ctx := context.Background()

	user := testUser("alice", "P-256", "xA", "yA")
	id, err := st.CreateUser(ctx, user)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	got, err := st.GetUser(ctx, id)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.Username != "alice" {
		t.Fatalf("unexpected username: %s", got.Username)
	}
	if got.Credential != user.Credential {
		t.Fatalf("credential mismatch: %+v", got.Credential)
	}

	byKey, err := st.GetUserByPublicKey(ctx, "P-256", "xA", "yA")
	if err != nil {
		t.Fatalf("get user by key: %v", err)
	}
	if byKey.ID != id {
		t.Fatalf("expected id %d, got %d", id, byKey.ID)
	}

	byCoords, err := st.GetUserByCoordinates(ctx, "xA", "yA")
	if err != nil {
		t.Fatalf("get user by coordinates: %v", err)
	}
	if byCoords.ID != id {
		t.Fatalf("expected id %d, got %d", id, byCoords.ID)
	}

	if _, err := st.GetUser(ctx, id+100); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := st.GetUserByPublicKey(ctx, "P-256", "nope", "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound by key, got %v", err)
	}
}

func TestUserUniqueness(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	ctx := context.Background()

	if _, err := st.CreateUser(ctx, testUser("alice", "P-256", "xA", "yA")); err != nil {
		t.Fatalf("create user: %v", err)
	}

	// Same username, different key.
	if _, err := st.CreateUser(ctx, testUser("alice", "P-256", "xB", "yB")); !errors.Is(err, store.ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}

	// Same key, different username.
	if _, err := st.CreateUser(ctx, testUser("bob", "P-256", "xA", "yA")); !errors.Is(err, store.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}

	// Same coordinates on another curve are a distinct key.
	if _, err := st.CreateUser(ctx, testUser("carol", "secp256k1", "xA", "yA")); err != nil {
		t.Fatalf("create user on other curve: %v", err)
	}
}

func TestListUsers(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	ctx := context.Background()

	for i, name := range []string{"alice", "bob", "carol"} {
		u := testUser(name, "P-256", fmt.Sprintf("x%d", i), fmt.Sprintf("y%d", i))
		u.CreatedAt = time.Now().Add(time.Duration(i) * time.Second)
		if _, err := st.CreateUser(ctx, u); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}

	users, err := st.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 3 {
		t.Fatalf("expected 3 users, got %d", len(users))
	}
	if users[0].Username != "alice" || users[2].Username != "carol" {
		t.Fatalf("unexpected order: %s, %s, %s", users[0].Username, users[1].Username, users[2].Username)
	}
}

func TestThoughtLifecycle(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	ctx := context.Background()

	authorID, err := st.CreateUser(ctx, testUser("alice", "P-256", "xA", "yA"))
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	first := &model.Thought{Text: "first", AuthorID: authorID, CreatedAt: time.Now().Add(-time.Minute)}
	second := &model.Thought{Text: "second", AuthorID: authorID, CreatedAt: time.Now()}
	if _, err := st.CreateThought(ctx, first); err != nil {
		t.Fatalf("create thought: %v", err)
	}
	id, err := st.CreateThought(ctx, second)
	if err != nil {
		t.Fatalf("create thought: %v", err)
	}

	got, err := st.GetThought(ctx, id)
	if err != nil {
		t.Fatalf("get thought: %v", err)
	}
	if got.Text != "second" || got.AuthorName != "alice" {
		t.Fatalf("unexpected thought: %+v", got)
	}

	thoughts, err := st.ListThoughts(ctx)
	if err != nil {
		t.Fatalf("list thoughts: %v", err)
	}
	if len(thoughts) != 2 {
		t.Fatalf("expected 2 thoughts, got %d", len(thoughts))
	}
	if thoughts[0].Text != "second" {
		t.Fatalf("expected newest first, got %s", thoughts[0].Text)
	}

	if _, err := st.GetThought(ctx, id+100); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListThoughtsByAuthor(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	ctx := context.Background()

	aliceID, err := st.CreateUser(ctx, testUser("alice", "P-256", "xA", "yA"))
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	bobID, err := st.CreateUser(ctx, testUser("bob", "P-256", "xB", "yB"))
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}

	for i, th := range []*model.Thought{
		{Text: "alice first", AuthorID: aliceID},
		{Text: "bob only", AuthorID: bobID},
		{Text: "alice second", AuthorID: aliceID},
	} {
		th.CreatedAt = time.Now().Add(time.Duration(i) * time.Second)
		if _, err := st.CreateThought(ctx, th); err != nil {
			t.Fatalf("create thought %d: %v", i, err)
		}
	}

	thoughts, err := st.ListThoughtsByAuthor(ctx, aliceID)
	if err != nil {
		t.Fatalf("list by author: %v", err)
	}
	if len(thoughts) != 2 {
		t.Fatalf("expected 2 thoughts, got %d", len(thoughts))
	}
	if thoughts[0].Text != "alice second" || thoughts[1].Text != "alice first" {
		t.Fatalf("unexpected order: %s, %s", thoughts[0].Text, thoughts[1].Text)
	}
	for _, th := range thoughts {
		if th.AuthorName != "alice" {
			t.Fatalf("unexpected author: %s", th.AuthorName)
		}
	}

	none, err := st.ListThoughtsByAuthor(ctx, bobID+100)
	if err != nil {
		t.Fatalf("list by unknown author: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no thoughts, got %d", len(none))
	}
}
