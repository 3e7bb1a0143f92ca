package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Sternrassler/eve-esi-scroll/pkg/scroll"
)

var (
	// ErrNotFound indicates no snapshot is stored for the session.
	ErrNotFound = errors.New("snapshot not found")

	// ErrInvalidEntry indicates the stored entry is corrupted.
	ErrInvalidEntry = errors.New("invalid snapshot entry")
)

// DefaultTTL is used when NewStore receives a non-positive TTL.
const DefaultTTL = 30 * time.Minute

// Store persists snapshots of one namespace in Redis.
type Store[T any] struct {
	redis     *redis.Client
	namespace string
	ttl       time.Duration
}

// NewStore creates a store. It panics on a nil client.
func NewStore[T any](redisClient *redis.Client, namespace string, ttl time.Duration) *Store[T] {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store[T]{
		redis:     redisClient,
		namespace: namespace,
		ttl:       ttl,
	}
}

// TTL returns the expiry applied on Save and Touch.
func (s *Store[T]) TTL() time.Duration {
	return s.ttl
}

func (s *Store[T]) key(session string) (string, error) {
	k := SessionKey{Namespace: s.namespace, Session: session}
	if err := k.Validate(); err != nil {
		return "", err
	}
	return k.String(), nil
}

// Save stores snap for session, replacing any previous entry and resetting the TTL.
func (s *Store[T]) Save(ctx context.Context, session string, snap scroll.Snapshot[T]) error {
	key, err := s.key(session)
	if err != nil {
		return err
	}

	data, err := json.Marshal(Entry[T]{Snapshot: snap, SavedAt: time.Now()})
	if err != nil {
		errorsTotal.WithLabelValues("save").Inc()
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := s.redis.Set(ctx, key, data, s.ttl).Err(); err != nil {
		errorsTotal.WithLabelValues("save").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	snapshotBytes.Set(float64(len(data)))
	return nil
}

// Load returns the stored snapshot for session.
// Returns ErrNotFound if nothing is stored or the entry expired.
func (s *Store[T]) Load(ctx context.Context, session string) (scroll.Snapshot[T], error) {
	entry, err := s.LoadEntry(ctx, session)
	if err != nil {
		return scroll.Snapshot[T]{}, err
	}
	return entry.Snapshot, nil
}

// LoadEntry is Load including the envelope metadata.
func (s *Store[T]) LoadEntry(ctx context.Context, session string) (*Entry[T], error) {
	key, err := s.key(session)
	if err != nil {
		return nil, err
	}

	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			missesTotal.Inc()
			return nil, ErrNotFound
		}
		errorsTotal.WithLabelValues("load").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry[T]
	if err := json.Unmarshal(data, &entry); err != nil {
		errorsTotal.WithLabelValues("load").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	hitsTotal.Inc()
	return &entry, nil
}

// Delete removes the snapshot for session. Deleting a missing entry is not an error.
func (s *Store[T]) Delete(ctx context.Context, session string) error {
	key, err := s.key(session)
	if err != nil {
		return err
	}

	if err := s.redis.Del(ctx, key).Err(); err != nil {
		errorsTotal.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Touch extends the TTL of a stored snapshot without rewriting it.
// Returns ErrNotFound if nothing is stored.
func (s *Store[T]) Touch(ctx context.Context, session string) error {
	key, err := s.key(session)
	if err != nil {
		return err
	}

	ok, err := s.redis.Expire(ctx, key, s.ttl).Result()
	if err != nil {
		errorsTotal.WithLabelValues("touch").Inc()
		return fmt.Errorf("redis expire: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// Sessions lists the stored session IDs of the namespace.
func (s *Store[T]) Sessions(ctx context.Context) ([]string, error) {
	if err := validatePart(s.namespace); err != nil {
		return nil, err
	}
	prefix := SessionKey{Namespace: s.namespace}.String()

	var sessions []string
	iter := s.redis.Scan(ctx, 0, pattern(s.namespace), 100).Iterator()
	for iter.Next(ctx) {
		sessions = append(sessions, iter.Val()[len(prefix):])
	}
	if err := iter.Err(); err != nil {
		errorsTotal.WithLabelValues("scan").Inc()
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return sessions, nil
}
