package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/docket"
	"github.com/xraph/docket/backoff"
	"github.com/xraph/docket/job"
	"github.com/xraph/docket/store"
	"github.com/xraph/docket/store/docstore"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// maxTxAttempts bounds optimistic retries of one document update.
const maxTxAttempts = 64

// ErrContention is returned (wrapped) when a document update keeps losing
// its WATCH.
var ErrContention = docket.ErrContention

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithCodec selects the document encoding. The default is msgpack.
func WithCodec(c Codec) Option {
	return func(s *Store) { s.codec = c }
}

// WithRetryBackoff sets the pause between WATCH retries. The default is
// jittered exponential from 1ms up to 50ms.
func WithRetryBackoff(b backoff.Strategy) Option {
	return func(s *Store) { s.retry = b }
}

// WithKeyPrefix replaces the "docket:" key prefix.
func WithKeyPrefix(p string) Option {
	return func(s *Store) { s.prefix = p }
}

// Store implements store.Store backed by Redis.
type Store struct {
	*docstore.Store

	client goredis.UniversalClient
	logger *slog.Logger
	codec  Codec
	prefix string
	retry  backoff.Strategy
}

// New creates a new Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client goredis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client: client,
		logger: slog.Default(),
		codec:  MsgpackCodec{},
		prefix: defaultKeyPrefix,
		retry:  backoff.NewExponentialWithJitter(time.Millisecond, 50*time.Millisecond),
	}
	for _, o := range opts {
		o(s)
	}
	s.Store = docstore.New("redis", (*backend)(s))
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() goredis.UniversalClient { return s.client }

// Migrate is a no-op for Redis (schemaless).
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("docket/redis: ping: %w", err)
	}
	return nil
}

// Close is a no-op: the caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Document backend
// ──────────────────────────────────────────────────

// backend is the docstore.Backend view of a Store. Each queue document is
// one string value; updates run as WATCH/MULTI transactions and are
// retried when another client wrote the key in between.
type backend Store

func (b *backend) Create(ctx context.Context, queue string) error {
	raw, err := b.codec.Encode(job.NewDocument(queue))
	if err != nil {
		return err
	}
	return b.client.SetNX(ctx, (*Store)(b).queueKey(queue), raw, 0).Err()
}

func (b *backend) load(ctx context.Context, c goredis.Cmdable, key string) (*job.Document, error) {
	raw, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, docket.ErrQueueNotFound
	}
	if err != nil {
		return nil, err
	}
	d, err := b.codec.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", b.codec.Name(), err)
	}
	if d.Jobs == nil {
		d.Jobs = make(map[int64]*job.Job)
	}
	return d, nil
}

func (b *backend) View(ctx context.Context, queue string, fn func(d *job.Document) error) error {
	d, err := b.load(ctx, b.client, (*Store)(b).queueKey(queue))
	if err != nil {
		return err
	}
	return fn(d)
}

func (b *backend) Mutate(ctx context.Context, queue string, fn func(d *job.Document) (bool, error)) error {
	key := (*Store)(b).queueKey(queue)
	txf := func(tx *goredis.Tx) error {
		d, err := b.load(ctx, tx, key)
		if err != nil {
			return err
		}
		changed, err := fn(d)
		if err != nil || !changed {
			return err
		}
		raw, err := b.codec.Encode(d)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := b.client.Watch(ctx, txf, key)
		if errors.Is(err, goredis.TxFailedErr) {
			b.logger.Debug("redis: queue document changed during update, retrying",
				slog.String("queue", queue),
				slog.Int("attempt", attempt+1),
			)
			if err := pause(ctx, b.retry.Delay(attempt+1)); err != nil {
				return err
			}
			continue
		}
		return err
	}
	return fmt.Errorf("%w after %d attempts", ErrContention, maxTxAttempts)
}

// pause sleeps d or until ctx is done.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *backend) Delete(ctx context.Context, queue string) error {
	return b.client.Del(ctx, (*Store)(b).queueKey(queue)).Err()
}
