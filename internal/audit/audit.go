// Package audit provides a durable, metadata-only compliance ledger for
// the redaction engine, backed by an embedded bbolt database.
//
// It persists exactly the summary metadata spec.md §3 already defines
// for a redaction result (count, types, engine name, timestamp, pipeline
// duration) plus the request ID, each entry stored under an
// auto-incrementing sequence key. It never stores spans, the original
// text, or the redacted text — only the fact that a redaction happened
// and its shape. This repurposes the teacher's bbolt-backed persistent
// cache for a use that is not a Non-goal: a reversible PII↔token cache
// would let the original text be recovered, which spec.md §1 rules out;
// a write-once audit trail of counts and types does not.
package audit

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

const bucketName = "redaction_audit"

// Entry is one audited redaction outcome.
type Entry struct {
	RequestID  string    `json:"requestId"`
	Timestamp  time.Time `json:"timestamp"`
	EngineName string    `json:"engineName"`
	Count      int       `json:"count"`
	Types      []string  `json:"types"`
	DurationMs float64   `json:"durationMs"`
	Failed     bool      `json:"failed"`
	ErrorKind  string    `json:"errorKind,omitempty"`
}

// Ledger is a durable, append-mostly store of audit Entries. Safe for
// concurrent use; bbolt serializes writers internally.
type Ledger struct {
	db *bolt.DB
}

// Open opens (or creates) the bbolt database at path and ensures the
// audit bucket exists.
func Open(path string) (*Ledger, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open audit ledger %q: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	}); err != nil {
		db.Close() //nolint:errcheck // best-effort close on init failure
		return nil, fmt.Errorf("create audit bucket: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Record appends one Entry to the ledger, keyed by an auto-incrementing
// sequence number so entries stay ordered and never collide.
func (l *Ledger) Record(e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	return l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(seqKey(seq), data)
	})
}

// Recent returns up to limit of the most recently recorded entries,
// newest first.
func (l *Ledger) Recent(limit int) ([]Entry, error) {
	var out []Entry
	err := l.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil && len(out) < limit; k, v = c.Prev() {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				continue // a corrupt entry must never abort the rest of the scan
			}
			out = append(out, e)
		}
		return nil
	})
	return out, err
}

// Stats summarizes the whole ledger: total entries, total spans redacted,
// and a count per engine name.
type Stats struct {
	TotalEntries int            `json:"totalEntries"`
	TotalSpans   int            `json:"totalSpans"`
	TotalFailed  int            `json:"totalFailed"`
	ByEngine     map[string]int `json:"byEngine,omitempty"`
}

// Summarize scans the whole ledger and returns aggregate Stats.
func (l *Ledger) Summarize() (Stats, error) {
	stats := Stats{ByEngine: make(map[string]int)}
	err := l.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return nil
			}
			stats.TotalEntries++
			stats.TotalSpans += e.Count
			if e.Failed {
				stats.TotalFailed++
			}
			stats.ByEngine[e.EngineName]++
			return nil
		})
	})
	return stats, err
}

// Close releases the underlying database file handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func seqKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%020d", seq))
}
