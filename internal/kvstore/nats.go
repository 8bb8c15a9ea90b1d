package kvstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// DefaultBucket is the JetStream KV bucket used when none is configured.
const DefaultBucket = "recently_viewed"

// kvBucket is the subset of jetstream.KeyValue the store relies on.
type kvBucket interface {
	Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error)
	Put(ctx context.Context, key string, value []byte) (uint64, error)
	Create(ctx context.Context, key string, value []byte) (uint64, error)
	Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error)
	Delete(ctx context.Context, key string, opts ...jetstream.KVDeleteOpt) error
}

// NATSOptions tunes CAS retries for Update.
type NATSOptions struct {
	MaxRetries int
	RetryDelay time.Duration
}

func DefaultNATSOptions() NATSOptions {
	return NATSOptions{MaxRetries: 10, RetryDelay: 10 * time.Millisecond}
}

// NATSStore stores values in a JetStream key-value bucket. Update uses the
// bucket's revision check, so concurrent writers in different processes
// never overwrite each other.
type NATSStore struct {
	bucket kvBucket
	opts   NATSOptions
	conn   *nats.Conn
}

// ConnectNATS dials url and opens (or creates) bucket.
func ConnectNATS(ctx context.Context, url, bucket string) (*NATSStore, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}
	nc, err := nats.Connect(url, nats.Name("recently-viewed"))
	if err != nil {
		return nil, fmt.Errorf("kvstore: connect nats: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("kvstore: jetstream: %w", err)
	}

	kv, err := js.KeyValue(ctx, bucket)
	if err != nil {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      bucket,
			Description: "recently viewed products",
			History:     1,
		})
		if err != nil {
			// another instance may have created it in the meantime
			if kv, err = js.KeyValue(ctx, bucket); err != nil {
				nc.Close()
				return nil, fmt.Errorf("kvstore: open bucket %s: %w", bucket, err)
			}
		} else {
			log.Infof("kvstore: created KV bucket %s", bucket)
		}
	}

	s := NewNATSStore(kv, DefaultNATSOptions())
	s.conn = nc
	return s, nil
}

// NewNATSStore wraps an already opened bucket.
func NewNATSStore(bucket kvBucket, opts NATSOptions) *NATSStore {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultNATSOptions().MaxRetries
	}
	return &NATSStore{bucket: bucket, opts: opts}
}

func (s *NATSStore) Get(ctx context.Context, key string) (string, bool, error) {
	entry, err := s.bucket.Get(ctx, natsKey(key))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("kvstore: get %s: %w", key, err)
	}
	return string(entry.Value()), true, nil
}

func (s *NATSStore) Set(ctx context.Context, key, value string) error {
	if _, err := s.bucket.Put(ctx, natsKey(key), []byte(value)); err != nil {
		return fmt.Errorf("kvstore: set %s: %w", key, err)
	}
	return nil
}

func (s *NATSStore) Remove(ctx context.Context, key string) error {
	if err := s.bucket.Delete(ctx, natsKey(key)); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("kvstore: remove %s: %w", key, err)
	}
	return nil
}

// Update retries fn until its result is written against the revision it read.
func (s *NATSStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	nk := natsKey(key)
	delay := s.opts.RetryDelay
	for attempt := 0; attempt <= s.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		var (
			cur      string
			ok       bool
			revision uint64
		)
		entry, err := s.bucket.Get(ctx, nk)
		switch {
		case err == nil:
			cur, ok, revision = string(entry.Value()), true, entry.Revision()
		case errors.Is(err, jetstream.ErrKeyNotFound):
		default:
			return fmt.Errorf("kvstore: get %s: %w", key, err)
		}

		next, err := fn(cur, ok)
		if err != nil {
			if errors.Is(err, ErrSkip) {
				return nil
			}
			return err
		}

		if ok {
			_, err = s.bucket.Update(ctx, nk, []byte(next), revision)
		} else {
			_, err = s.bucket.Create(ctx, nk, []byte(next))
		}
		if err == nil {
			return nil
		}
		if !isConflict(err) {
			return fmt.Errorf("kvstore: update %s: %w", key, err)
		}
	}
	return fmt.Errorf("kvstore: update %s: gave up after %d retries", key, s.opts.MaxRetries)
}

// Close drains the underlying connection when the store owns it.
func (s *NATSStore) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Drain()
}

// natsKey maps a store key onto the KV key alphabet, which has no ':'.
// Owner prefixes use ':' as separator and never contain '.'.
func natsKey(key string) string {
	return strings.ReplaceAll(key, ":", ".")
}

func isConflict(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "wrong last sequence") ||
		strings.Contains(msg, "10071") ||
		strings.Contains(msg, "key exists") ||
		strings.Contains(msg, "10058")
}
