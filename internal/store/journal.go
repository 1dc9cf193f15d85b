package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"overseer/internal/types"
)

var (
	bucketNudges = []byte("nudges")
	bucketMeta   = []byte("meta")
	keySchema    = []byte("schema_version")
)

const (
	journalSchemaVersion     = 1
	DefaultJournalMaxRecords = 1000
)

// NudgeFilter narrows List. Zero values mean "any session" and "no limit".
type NudgeFilter struct {
	SessionID string
	Limit     int
}

// NudgeJournal is an append-only log of corrective actions. It is written
// after every dispatch attempt and only ever read for inspection.
type NudgeJournal interface {
	Append(ctx context.Context, record *types.NudgeRecord) (*types.NudgeRecord, error)
	List(ctx context.Context, filter NudgeFilter) ([]*types.NudgeRecord, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

type bboltNudgeJournal struct {
	db         *bolt.DB
	maxRecords int
	mu         sync.Mutex
	now        func() time.Time
}

// NewBboltNudgeJournal opens (or creates) the journal at path. Once more
// than maxRecords entries exist the oldest are pruned on append; zero or
// less selects DefaultJournalMaxRecords.
func NewBboltNudgeJournal(path string, maxRecords int) (NudgeJournal, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("journal db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := initJournalSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if maxRecords <= 0 {
		maxRecords = DefaultJournalMaxRecords
	}
	return &bboltNudgeJournal{db: db, maxRecords: maxRecords, now: time.Now}, nil
}

func initJournalSchema(db *bolt.DB) error {
	return db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketNudges); err != nil {
			return err
		}
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		if raw := meta.Get(keySchema); len(raw) == 8 {
			if version := binary.BigEndian.Uint64(raw); version > journalSchemaVersion {
				return fmt.Errorf("journal schema version %d is newer than supported version %d", version, journalSchemaVersion)
			}
			return nil
		}
		return meta.Put(keySchema, sequenceKey(journalSchemaVersion))
	})
}

func (j *bboltNudgeJournal) Append(ctx context.Context, record *types.NudgeRecord) (*types.NudgeRecord, error) {
	if record == nil {
		return nil, errors.New("nudge record is required")
	}
	if strings.TrimSpace(record.SessionID) == "" {
		return nil, errors.New("session id is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	stored := *record
	stored.SessionID = strings.TrimSpace(stored.SessionID)
	if stored.SentAt.IsZero() {
		stored.SentAt = j.now().UTC()
	}
	err := j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNudges)
		if b == nil {
			return errors.New("nudges bucket missing")
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		stored.ID = fmt.Sprintf("nudge-%08d", seq)
		data, err := json.Marshal(&stored)
		if err != nil {
			return err
		}
		if err := b.Put(sequenceKey(seq), data); err != nil {
			return err
		}
		return pruneOldest(b, j.maxRecords)
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// List returns matching records newest first.
func (j *bboltNudgeJournal) List(ctx context.Context, filter NudgeFilter) ([]*types.NudgeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sessionID := strings.TrimSpace(filter.SessionID)
	out := make([]*types.NudgeRecord, 0)
	err := j.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNudges)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var record types.NudgeRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			if sessionID != "" && record.SessionID != sessionID {
				continue
			}
			out = append(out, &record)
			if filter.Limit > 0 && len(out) >= filter.Limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (j *bboltNudgeJournal) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	count := 0
	err := j.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket(bucketNudges); b != nil {
			count = countKeys(b)
		}
		return nil
	})
	return count, err
}

func (j *bboltNudgeJournal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

func pruneOldest(b *bolt.Bucket, maxRecords int) error {
	excess := countKeys(b) - maxRecords
	if excess <= 0 {
		return nil
	}
	c := b.Cursor()
	for k, _ := c.First(); k != nil && excess > 0; k, _ = c.First() {
		if err := c.Delete(); err != nil {
			return err
		}
		excess--
	}
	return nil
}

// countKeys walks the bucket; Stats does not see writes made earlier in
// the same transaction.
func countKeys(b *bolt.Bucket) int {
	n := 0
	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		n++
	}
	return n
}

func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
