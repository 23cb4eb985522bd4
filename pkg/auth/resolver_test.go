package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/taskflow/pkg/apperrors"
)

type fakeLoader struct {
	identities map[int64]*Identity
	err        error
	calls      int
}

func (f *fakeLoader) LoadIdentity(ctx context.Context, userID int64) (*Identity, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	identity, ok := f.identities[userID]
	if !ok {
		return nil, apperrors.NotFound("user not found")
	}
	cp := *identity
	return &cp, nil
}

func TestResolver_CachesIdentity(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Hour)
	loader := &fakeLoader{identities: map[int64]*Identity{
		1: {UserID: 1, OrgID: 10, RoleID: 5, RoleName: "Admin", Permissions: []string{"view_tasks"}},
	}}
	resolver := NewResolver(tm, NewLRUCache(10, time.Minute), loader, nil)

	token, _, err := tm.Issue(1, 10)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		identity, err := resolver.Resolve(context.Background(), token)
		require.NoError(t, err)
		assert.Equal(t, "Admin", identity.RoleName)
	}
	assert.Equal(t, 1, loader.calls, "later requests are served from the cache")

	require.NoError(t, resolver.Invalidator().InvalidateRole(context.Background(), 5))
	_, err = resolver.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, 2, loader.calls, "invalidation forces a reload")
}

func TestResolver_FailsClosed(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Hour)

	t.Run("bad token", func(t *testing.T) {
		resolver := NewResolver(tm, nil, &fakeLoader{}, nil)
		_, err := resolver.Resolve(context.Background(), "garbage")
		assert.Equal(t, apperrors.KindUnauthorized, apperrors.KindOf(err))
	})

	t.Run("token without a usable subject", func(t *testing.T) {
		loader := &fakeLoader{}
		resolver := NewResolver(tm, nil, loader, nil)
		token, _, err := tm.Issue(0, 10)
		require.NoError(t, err)

		_, err = resolver.Resolve(context.Background(), token)
		assert.Equal(t, apperrors.KindUnauthorized, apperrors.KindOf(err))
		assert.Zero(t, loader.calls, "no lookup for user 0")
	})

	t.Run("loader rejects identity", func(t *testing.T) {
		resolver := NewResolver(tm, nil, &fakeLoader{err: apperrors.Forbidden("organization is suspended")}, nil)
		token, _, _ := tm.Issue(1, 10)

		_, err := resolver.Resolve(context.Background(), token)
		assert.Equal(t, apperrors.KindUnauthorized, apperrors.KindOf(err))
		assert.Contains(t, err.Error(), "suspended")
	})

	t.Run("database failure is internal", func(t *testing.T) {
		resolver := NewResolver(tm, nil, &fakeLoader{err: errors.New("connection refused")}, nil)
		token, _, _ := tm.Issue(1, 10)

		_, err := resolver.Resolve(context.Background(), token)
		require.Error(t, err)
		assert.Equal(t, apperrors.KindInternal, apperrors.KindOf(err))
	})

	t.Run("token for another org", func(t *testing.T) {
		loader := &fakeLoader{identities: map[int64]*Identity{1: {UserID: 1, OrgID: 10}}}
		resolver := NewResolver(tm, NewLRUCache(10, time.Minute), loader, nil)
		token, _, _ := tm.Issue(1, 99)

		_, err := resolver.Resolve(context.Background(), token)
		assert.Equal(t, apperrors.KindUnauthorized, apperrors.KindOf(err))
	})
}
