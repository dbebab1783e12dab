package core

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// newTestRedis spins up an in-process redis and a client against it.
func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func newTestStore(t *testing.T) (*miniredis.Miniredis, *Store) {
	t.Helper()
	mr, client := newTestRedis(t)
	return mr, NewStore(client)
}

// fakeDirectory is an in-memory UserDirectory for tests.
type fakeDirectory struct {
	records []*UserRecord
}

func (f *fakeDirectory) FindByUsername(_ context.Context, username string) (*UserRecord, error) {
	for _, r := range f.records {
		if r.Username == username {
			return r, nil
		}
	}
	return nil, ErrIdentityNotFound
}

func (f *fakeDirectory) FindByEmail(_ context.Context, email string) (*UserRecord, error) {
	for _, r := range f.records {
		if r.Email == email {
			return r, nil
		}
	}
	return nil, ErrIdentityNotFound
}

func (f *fakeDirectory) FindByID(_ context.Context, id int64) (*UserRecord, error) {
	for _, r := range f.records {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, ErrIdentityNotFound
}
