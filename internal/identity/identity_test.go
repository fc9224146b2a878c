// ABOUTME: Tests for identity providers
// ABOUTME: Covers static names, OS lookup with $USER fallback and database session users

package identity

import (
	"context"
	"errors"
	"os/user"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/agentchat/internal/store"
)

type fakeSession struct {
	name string
	err  error
}

func (f fakeSession) CurrentUser(context.Context) (string, error) { return f.name, f.err }

func TestStatic(t *testing.T) {
	name, err := Static("ALICE").CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ALICE", name)

	_, err = Static("  ").CurrentUser(context.Background())
	assert.ErrorIs(t, err, ErrNoUser)
}

func TestOS_Fallbacks(t *testing.T) {
	ctx := context.Background()
	env := map[string]string{"USER": "envuser"}

	o := &OS{
		lookup: func() (*user.User, error) { return &user.User{Username: "acct"}, nil },
		getenv: func(k string) string { return env[k] },
	}
	name, err := o.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "acct", name)

	o.lookup = func() (*user.User, error) { return nil, errors.New("no passwd") }
	name, err = o.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "envuser", name)

	delete(env, "USER")
	_, err = o.CurrentUser(ctx)
	assert.ErrorIs(t, err, ErrNoUser)
}

func TestDatabase(t *testing.T) {
	ctx := context.Background()

	name, err := Database{db: fakeSession{name: "ANALYST"}}.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ANALYST", name)

	_, err = Database{db: fakeSession{}}.CurrentUser(ctx)
	assert.ErrorIs(t, err, ErrNoUser)

	boom := errors.New("conn closed")
	_, err = Database{db: fakeSession{err: boom}}.CurrentUser(ctx)
	assert.ErrorIs(t, err, boom)
}

func TestNew(t *testing.T) {
	p, err := New("", "", nil)
	require.NoError(t, err)
	assert.IsType(t, &OS{}, p)

	p, err = New(SourceStatic, "bob", nil)
	require.NoError(t, err)
	assert.Equal(t, Static("bob"), p)

	_, err = New(SourceStatic, "", nil)
	assert.Error(t, err)

	p, err = New(SourceDatabase, "", fakeSession{name: "x"})
	require.NoError(t, err)
	assert.IsType(t, Database{}, p)

	// SQLite has no session user
	_, err = New(SourceDatabase, "", store.NewMockStore())
	assert.Error(t, err)

	_, err = New("ldap", "", nil)
	assert.Error(t, err)
}
