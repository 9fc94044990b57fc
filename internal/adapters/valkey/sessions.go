package valkey

import (
	"context"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
)

// Store implements ports.SessionStore using Valkey (Redis-compatible).
// Expiry is delegated to the server: a session read after its TTL is
// simply absent.
type Store struct {
	client valkey.Client
}

// New creates a new Valkey session store.
func New(addr string) (*Store, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{addr},
	})
	if err != nil {
		return nil, fmt.Errorf("valkey connect: %w", err)
	}
	return &Store{client: client}, nil
}

// Get retrieves a value by key. Missing or expired keys return nil.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	cmd := s.client.Do(ctx, s.client.B().Get().Key(key).Build())
	if err := cmd.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, nil
		}
		return nil, err
	}
	return cmd.AsBytes()
}

// Set stores a value with a TTL.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	cmd := s.client.Do(ctx,
		s.client.B().Set().Key(key).Value(string(value)).Ex(ttl).Build(),
	)
	return cmd.Error()
}

// Delete removes a key.
func (s *Store) Delete(ctx context.Context, key string) error {
	cmd := s.client.Do(ctx, s.client.B().Del().Key(key).Build())
	return cmd.Error()
}

// Close releases the client.
func (s *Store) Close() {
	s.client.Close()
}
