// Package idempotency records the responses of settling requests keyed by the
// client's Idempotency-Key, so a retried POST replays the first outcome
// instead of charging twice.
//
// Records live in a single BoltDB bucket. Bolt serializes write transactions,
// which makes the claim in Begin atomic: of two concurrent requests with the
// same key exactly one gets to run the handler.
package idempotency

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "github.com/boltdb/bolt"
)

const bucketName = "responses"

// DefaultPendingTimeout is how long a claim may stay unfinished before a new
// request may take it over.
const DefaultPendingTimeout = time.Minute

var (
	// ErrInProgress is returned when another request holds the key.
	ErrInProgress = errors.New("idempotency: request with this key is in progress")
	// ErrKeyReused is returned when the key was first used with a different
	// request payload.
	ErrKeyReused = errors.New("idempotency: key reused with a different request")
)

// Response is a recorded outcome. Pending marks a claim whose handler has
// not finished yet.
type Response struct {
	Fingerprint string    `json:"fingerprint"`
	Pending     bool      `json:"pending"`
	Status      int       `json:"status,omitempty"`
	ContentType string    `json:"contentType,omitempty"`
	Body        []byte    `json:"body,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Store struct {
	db             *bolt.DB
	ttl            time.Duration
	pendingTimeout time.Duration
	now            func() time.Time
}

// Open opens (or creates) the bolt file at path. Completed responses are
// replayed for ttl.
func Open(path string, ttl time.Duration) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create idempotency dir: %w", err)
		}
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open idempotency store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create idempotency bucket: %w", err)
	}

	return &Store{
		db:             db,
		ttl:            ttl,
		pendingTimeout: DefaultPendingTimeout,
		now:            time.Now,
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) expired(r *Response, now time.Time) bool {
	if r.Pending {
		return now.Sub(r.CreatedAt) > s.pendingTimeout
	}
	return now.Sub(r.CreatedAt) > s.ttl
}

// Begin looks up key. If a completed response is recorded it is returned and
// the caller should replay it. Otherwise the key is claimed for this request
// and Begin returns (nil, nil); the caller must then call Complete or Release.
func (s *Store) Begin(key, fingerprint string) (*Response, error) {
	var replay *Response
	now := s.now()

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))

		if existing := b.Get([]byte(key)); existing != nil {
			var r Response
			if err := json.Unmarshal(existing, &r); err != nil {
				return err
			}

			if !s.expired(&r, now) {
				if r.Fingerprint != fingerprint {
					return ErrKeyReused
				}
				if r.Pending {
					return ErrInProgress
				}
				replay = &r
				return nil
			}
		}

		data, err := json.Marshal(Response{Fingerprint: fingerprint, Pending: true, CreatedAt: now})
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
	if err != nil {
		return nil, err
	}

	return replay, nil
}

// Complete records the final response for a key claimed with Begin.
func (s *Store) Complete(key string, resp Response) error {
	resp.Pending = false
	resp.CreatedAt = s.now()

	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(key), data)
	})
}

// Release drops a claim so the client may retry with the same key.
func (s *Store) Release(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete([]byte(key))
	})
}

// Purge deletes expired records and returns how many were removed.
func (s *Store) Purge() (int, error) {
	removed := 0
	now := s.now()

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))

		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var r Response
			if err := json.Unmarshal(v, &r); err != nil || s.expired(&r, now) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	if err != nil {
		return 0, err
	}

	return removed, nil
}
