// ABOUTME: Current-user identity providers: static name, operating system account, or database session user
// ABOUTME: Thread ownership is keyed by the name these return

package identity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/user"
	"strings"
)

// Identity sources accepted by New.
const (
	SourceStatic   = "static"
	SourceOS       = "os"
	SourceDatabase = "database"
)

// ErrNoUser is returned when a provider cannot determine a user name.
var ErrNoUser = errors.New("current user unknown")

// Provider answers "who is the current user".
type Provider interface {
	CurrentUser(ctx context.Context) (string, error)
}

// Static always returns the same name.
type Static string

// CurrentUser implements Provider.
func (s Static) CurrentUser(context.Context) (string, error) {
	name := strings.TrimSpace(string(s))
	if name == "" {
		return "", ErrNoUser
	}
	return name, nil
}

// OS reports the operating system account running the process.
type OS struct {
	lookup func() (*user.User, error)
	getenv func(string) string
}

// NewOS returns an OS provider.
func NewOS() *OS {
	return &OS{lookup: user.Current, getenv: os.Getenv}
}

// CurrentUser implements Provider. $USER is the fallback when the account
// database is unavailable, as in minimal containers.
func (o *OS) CurrentUser(context.Context) (string, error) {
	if u, err := o.lookup(); err == nil && u.Username != "" {
		return u.Username, nil
	}
	if name := o.getenv("USER"); name != "" {
		return name, nil
	}
	return "", ErrNoUser
}

// SessionUserer is implemented by stores that can name their session user.
type SessionUserer interface {
	CurrentUser(ctx context.Context) (string, error)
}

// Database asks the store for its session user (CURRENT_USER on postgres).
type Database struct {
	db SessionUserer
}

// CurrentUser implements Provider.
func (d Database) CurrentUser(ctx context.Context) (string, error) {
	name, err := d.db.CurrentUser(ctx)
	if err != nil {
		return "", fmt.Errorf("querying session user: %w", err)
	}
	if name == "" {
		return "", ErrNoUser
	}
	return name, nil
}

// New builds the provider for source. db is consulted only for SourceDatabase
// and must then implement SessionUserer.
func New(source, name string, db any) (Provider, error) {
	switch source {
	case "", SourceOS:
		return NewOS(), nil
	case SourceStatic:
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("identity.user is required for the static source")
		}
		return Static(name), nil
	case SourceDatabase:
		su, ok := db.(SessionUserer)
		if !ok {
			return nil, fmt.Errorf("database identity requires a store that reports its session user (use the postgres driver)")
		}
		return Database{db: su}, nil
	default:
		return nil, fmt.Errorf("unknown identity source %q", source)
	}
}
