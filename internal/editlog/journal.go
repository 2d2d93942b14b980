// Package editlog records committed graph batches in a SQLite journal.
//
// A Journal is a graphstore.CommitObserver: attach it to a store and every
// committed gesture lands in the journal with the store fingerprints before
// and after it. Stores sharing a journal attach a Session each so their
// fingerprint chains are kept apart. Payloads are JSON compressed with zstd and checksummed with
// BLAKE3 so corruption is detected on read.
package editlog

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/specialistvlad/graphedit/internal/graphstore"
	"lukechampine.com/blake3"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

var (
	ErrEntryNotFound = errors.New("editlog: entry not found")
	ErrCorrupt       = errors.New("editlog: checksum mismatch")
	// ErrBrokenChain means an entry does not start where the previous one
	// ended.
	ErrBrokenChain = errors.New("editlog: fingerprint chain broken")
)

// Entry is the metadata of one journaled batch.
type Entry struct {
	ID        int64
	Session   string
	Name      string
	Ops       int
	Before    string
	After     string
	CreatedAt time.Time
}

// Journal is a SQLite-backed log of committed batches. It is safe for
// concurrent use.
type Journal struct {
	conn *sql.DB
	Path string

	mu  sync.Mutex
	enc *zstd.Encoder
	dec *zstd.Decoder
	now func() time.Time
}

var _ graphstore.CommitObserver = (*Journal)(nil)

// Open opens or creates a journal at path. Use ":memory:" for a throwaway
// journal.
func Open(path string) (*Journal, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	// A single connection keeps ":memory:" journals alive across calls.
	conn.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA synchronous=NORMAL"} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", pragma, err)
		}
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		conn.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	return &Journal{conn: conn, Path: path, enc: enc, dec: dec, now: time.Now}, nil
}

// Close closes the journal.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.dec.Close()
	if err := j.enc.Close(); err != nil {
		j.conn.Close()
		return fmt.Errorf("closing zstd encoder: %w", err)
	}
	return j.conn.Close()
}

// BatchCommitted appends b to the default session. Empty batches are
// skipped.
func (j *Journal) BatchCommitted(b graphstore.Batch) error {
	return j.observe("", b)
}

func (j *Journal) observe(session string, b graphstore.Batch) error {
	if len(b.Ops) == 0 {
		return nil
	}
	_, err := j.append(context.Background(), session, b)
	return err
}

// Session is a CommitObserver writing into its own chain of a journal.
type Session struct {
	ID string
	j  *Journal
}

var _ graphstore.CommitObserver = (*Session)(nil)

// NewSession starts a chain with a fresh ID.
func (j *Journal) NewSession() *Session {
	return &Session{ID: uuid.NewString(), j: j}
}

func (s *Session) BatchCommitted(b graphstore.Batch) error {
	return s.j.observe(s.ID, b)
}

// Append stores b in the default session and returns its entry ID.
func (j *Journal) Append(ctx context.Context, b graphstore.Batch) (int64, error) {
	return j.append(ctx, "", b)
}

func (j *Journal) append(ctx context.Context, session string, b graphstore.Batch) (int64, error) {
	raw, err := json.Marshal(b)
	if err != nil {
		return 0, fmt.Errorf("encoding batch %q: %w", b.Name, err)
	}
	sum := blake3.Sum256(raw)

	j.mu.Lock()
	defer j.mu.Unlock()
	payload := j.enc.EncodeAll(raw, nil)
	res, err := j.conn.ExecContext(ctx,
		`INSERT INTO batches (session, ts, name, op_count, before_fp, after_fp, checksum, payload) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session, j.now().UnixMilli(), b.Name, len(b.Ops), b.Before, b.After, sum[:], payload,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting batch %q: %w", b.Name, err)
	}
	return res.LastInsertId()
}

// Entries lists all entries in commit order.
func (j *Journal) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := j.conn.QueryContext(ctx,
		`SELECT id, session, ts, name, op_count, before_fp, after_fp FROM batches ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e  Entry
			ts int64
		)
		if err := rows.Scan(&e.ID, &e.Session, &ts, &e.Name, &e.Ops, &e.Before, &e.After); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		e.CreatedAt = time.UnixMilli(ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Batch loads the full batch of an entry and verifies its checksum. Op
// values come back as generic JSON values.
func (j *Journal) Batch(ctx context.Context, id int64) (graphstore.Batch, error) {
	var checksum, payload []byte
	err := j.conn.QueryRowContext(ctx,
		`SELECT checksum, payload FROM batches WHERE id = ?`, id,
	).Scan(&checksum, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return graphstore.Batch{}, fmt.Errorf("entry %d: %w", id, ErrEntryNotFound)
	}
	if err != nil {
		return graphstore.Batch{}, fmt.Errorf("querying entry %d: %w", id, err)
	}

	j.mu.Lock()
	raw, err := j.dec.DecodeAll(payload, nil)
	j.mu.Unlock()
	if err != nil {
		return graphstore.Batch{}, fmt.Errorf("decompressing entry %d: %w", id, err)
	}
	if sum := blake3.Sum256(raw); string(sum[:]) != string(checksum) {
		return graphstore.Batch{}, fmt.Errorf("entry %d: %w", id, ErrCorrupt)
	}
	var b graphstore.Batch
	if err := json.Unmarshal(raw, &b); err != nil {
		return graphstore.Batch{}, fmt.Errorf("decoding entry %d: %w", id, err)
	}
	return b, nil
}

// Verify checks every checksum and that each entry starts from the
// fingerprint the previous entry of its session ended with. It returns the
// number of entries checked before the first failure.
func (j *Journal) Verify(ctx context.Context) (int, error) {
	entries, err := j.Entries(ctx)
	if err != nil {
		return 0, err
	}
	last := make(map[string]Entry)
	for i, e := range entries {
		if _, err := j.Batch(ctx, e.ID); err != nil {
			return i, err
		}
		if prev, ok := last[e.Session]; ok && prev.After != e.Before {
			return i, fmt.Errorf("entry %d (%s) starts at %s, previous ended at %s: %w",
				e.ID, e.Name, e.Before, prev.After, ErrBrokenChain)
		}
		last[e.Session] = e
	}
	return len(entries), nil
}
