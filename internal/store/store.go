package store

import (
	"context"
	"errors"

	"github.com/ssasy-auth/demo/internal/model"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrDuplicateKey  = errors.New("duplicate key")
	ErrDuplicateName = errors.New("duplicate name")
)

type Store interface {
	UserStore
	ThoughtStore
	Close() error
}

type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) (int64, error)
	GetUser(ctx context.Context, id int64) (model.User, error)
	GetUserByPublicKey(ctx context.Context, crv, x, y string) (model.User, error)
	GetUserByCoordinates(ctx context.Context, x, y string) (model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
}

type ThoughtStore interface {
	CreateThought(ctx context.Context, thought *model.Thought) (int64, error)
	GetThought(ctx context.Context, id int64) (model.Thought, error)
	ListThoughts(ctx context.Context) ([]model.Thought, error)
	ListThoughtsByAuthor(ctx context.Context, authorID int64) ([]model.Thought, error)
}
