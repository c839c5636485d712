// Package artifact persists trained models in badger. Each save writes a new
// versioned blob under a ULID key and moves the tier's latest pointer to it.
package artifact

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/oklog/ulid/v2"

	"github.com/okian/meeple/internal/domain/latent"
	"github.com/okian/meeple/internal/domain/model"
	"github.com/okian/meeple/pkg/metrics"
)

const (
	modelPrefix  = "model/"
	latestPrefix = "latest/"
	defaultKeep  = 3
)

// Header is stored in clear next to the payload.
type Header struct {
	ID            string        `json:"id"`
	Tier          string        `json:"tier"`
	TrainedAt     time.Time     `json:"trainedAt"`
	CorpusSize    int           `json:"corpusSize"`
	SchemaVersion int           `json:"schemaVersion"`
	Params        latent.Params `json:"params"`
	Checksum      string        `json:"checksum"`
	SizeBytes     int           `json:"sizeBytes"`
}

type envelope struct {
	Header  Header `json:"header"`
	Payload []byte `json:"payload"`
}

// payload is the gob-encoded model body.
type payload struct {
	Items   []int64
	Factors [][]float64
}

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithKeep sets how many artifacts are retained per tier.
func WithKeep(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.keep = n
		}
	}
}

// Store is a badger-backed artifact store.
type Store struct {
	db   *badger.DB
	keep int
}

// Open opens badger at dir, or an in-memory instance when dir is empty.
func Open(dir string) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open artifact store: %w", err)
	}
	return db, nil
}

// NewStore creates a store on db.
func NewStore(db *badger.DB, opts ...Option) *Store {
	s := &Store{db: db, keep: defaultKeep}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func modelKey(tag, id string) []byte { return []byte(modelPrefix + tag + "/" + id) }
func latestKey(tag string) []byte    { return []byte(latestPrefix + tag) }

// Save writes m as a new artifact, points the tier at it and prunes old
// versions.
func (s *Store) Save(ctx context.Context, m *latent.Model) (err error) {
	tag := m.Tier().Tag()
	defer func() { metrics.RecordArtifactOperation(tag, "save", err) }()
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := encodePayload(payload{Items: m.Items(), Factors: m.Factors()})
	if err != nil {
		return err
	}
	sum := sha256.Sum256(body)
	meta := m.Meta()
	env := envelope{
		Header: Header{
			ID:            ulid.Make().String(),
			Tier:          tag,
			TrainedAt:     meta.TrainedAt,
			CorpusSize:    meta.CorpusSize,
			SchemaVersion: meta.SchemaVersion,
			Params:        m.Params(),
			Checksum:      hex.EncodeToString(sum[:]),
			SizeBytes:     len(body),
		},
		Payload: body,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(modelKey(tag, env.Header.ID), data); err != nil {
			return fmt.Errorf("set artifact: %w", err)
		}
		return txn.Set(latestKey(tag), []byte(env.Header.ID))
	})
	if err != nil {
		return err
	}
	return s.prune(tag)
}

// LoadLatest decodes the newest artifact for t. It returns an error wrapping
// model.ErrNotFound when none exists and ErrUnsupportedSchema for artifacts
// written by an incompatible build.
func (s *Store) LoadLatest(ctx context.Context, t model.Tier) (m *latent.Model, err error) {
	tag := t.Tag()
	defer func() {
		if !errors.Is(err, model.ErrNotFound) {
			metrics.RecordArtifactOperation(tag, "load", err)
		}
	}()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var env envelope
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(latestKey(tag))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%s artifact: %w", tag, model.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get latest pointer: %w", err)
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		item, err = txn.Get(modelKey(tag, string(id)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%s artifact %s: %w", tag, id, model.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get artifact: %w", err)
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &env); err != nil {
				return fmt.Errorf("%w: %w", ErrCorrupt, err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return decode(t, env)
}

func decode(t model.Tier, env envelope) (*latent.Model, error) {
	h := env.Header
	if h.SchemaVersion != latent.SchemaVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedSchema, h.SchemaVersion)
	}
	if h.Tier != t.Tag() {
		return nil, fmt.Errorf("%w: tier %q stored under %q", ErrCorrupt, h.Tier, t.Tag())
	}
	sum := sha256.Sum256(env.Payload)
	if hex.EncodeToString(sum[:]) != h.Checksum {
		return nil, fmt.Errorf("%w: checksum mismatch for %s", ErrCorrupt, h.ID)
	}
	p, err := decodePayload(env.Payload)
	if err != nil {
		return nil, err
	}
	meta := latent.Meta{Tier: t, TrainedAt: h.TrainedAt, CorpusSize: h.CorpusSize, SchemaVersion: h.SchemaVersion}
	m, err := latent.NewModel(meta, h.Params, p.Items, p.Factors)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return m, nil
}

// Headers lists the stored artifacts for t, oldest first.
func (s *Store) Headers(ctx context.Context, t model.Tier) ([]Header, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Header
	prefix := []byte(modelPrefix + t.Tag() + "/")
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var env envelope
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &env) }); err != nil {
				return fmt.Errorf("%w: %w", ErrCorrupt, err)
			}
			out = append(out, env.Header)
		}
		return nil
	})
	return out, err
}

func (s *Store) prune(tag string) error {
	prefix := []byte(modelPrefix + tag + "/")
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil || len(keys) <= s.keep {
		return err
	}
	// ULID keys sort by creation time
	stale := keys[:len(keys)-s.keep]
	return s.db.Update(func(txn *badger.Txn) error {
		for _, k := range stale {
			if err := txn.Delete(k); err != nil {
				return fmt.Errorf("prune artifact: %w", err)
			}
		}
		return nil
	})
}

func encodePayload(p payload) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := gob.NewEncoder(zw).Encode(p); err != nil {
		return nil, fmt.Errorf("encode artifact: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress artifact: %w", err)
	}
	return buf.Bytes(), nil
}

func decodePayload(b []byte) (payload, error) {
	var p payload
	zr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return p, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	defer zr.Close()
	if err := gob.NewDecoder(zr).Decode(&p); err != nil {
		return p, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return p, nil
}
