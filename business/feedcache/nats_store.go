package feedcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// NATSStore is a Store on a JetStream key value bucket, shared by every tracker connected to the same NATS cluster
type NATSStore struct {
	kv jetstream.KeyValue
}

// NewNATSStore binds to bucket, creating it with ttl as the expiry of every key when needed
func NewNATSStore(ctx context.Context, js jetstream.JetStream, bucket string, ttl time.Duration) (*NATSStore, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "realtime feed snapshots",
		History:     1,
		TTL:         ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to bind key value bucket %s: %w", bucket, err)
	}
	return &NATSStore{kv: kv}, nil
}

func (n *NATSStore) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := n.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return entry.Value(), nil
}

func (n *NATSStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := n.kv.Put(ctx, key, value)
	return err
}

func (n *NATSStore) Create(ctx context.Context, key string, value []byte) error {
	_, err := n.kv.Create(ctx, key, value)
	if errors.Is(err, jetstream.ErrKeyExists) {
		return ErrKeyExists
	}
	return err
}

func (n *NATSStore) Delete(ctx context.Context, key string) error {
	err := n.kv.Delete(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}
