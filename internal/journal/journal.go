// Package journal records the protocol's observable behavior — wire
// messages and notable lifecycle operations — into a SQLite event log
// with a monotonic logical sequence. The journal is purely diagnostic:
// the lifetime protocol itself has no persisted state. Recorded runs
// back the CLI's trace/replay commands and the harness's golden traces.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/bctree/internal/bctx"
)

//go:embed schema.sql
var schemaSQL string

// Direction classifies how a process observed an event.
const (
	DirSend = "send"
	DirRecv = "recv"
	DirOp   = "op"
)

// Event is one journal row. Zero-valued fields are stored as their
// defaults; Seq is assigned by Append.
type Event struct {
	Seq       int64
	Run       string
	PID       bctx.ProcessID
	Direction string
	Kind      string
	Node      bctx.NodeID
	Group     bctx.GroupID
	Peer      bctx.ProcessID
	Epoch     uint64
	Name      string
	Detail    string
}

// Journal is a SQLite-backed protocol event log. Append is safe from any
// goroutine; the single-connection pool serializes writers.
type Journal struct {
	db    *sql.DB
	clock *Clock
	run   string
}

// Open creates or opens a journal database. Pass ":memory:" for an
// ephemeral journal (tests, harness runs). The run id tags every event
// appended through this handle.
func Open(path, run string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect journal: %w", err)
	}

	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}

	var last sql.NullInt64
	if err := db.QueryRow("SELECT MAX(seq) FROM events").Scan(&last); err != nil {
		db.Close()
		return nil, fmt.Errorf("read journal position: %w", err)
	}

	return &Journal{db: db, clock: NewClockAt(last.Int64), run: run}, nil
}

// Close releases the database.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Run returns the run id events are tagged with.
func (j *Journal) Run() string { return j.run }

// Seq returns the latest issued sequence number.
func (j *Journal) Seq() int64 { return j.clock.Current() }

// Append stamps the event with the next sequence number and this
// journal's run id, then inserts it.
func (j *Journal) Append(ctx context.Context, e Event) error {
	e.Seq = j.clock.Next()
	e.Run = j.run
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO events
		(seq, run_id, pid, direction, kind, node_id, group_id, peer, epoch, name, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.Seq,
		e.Run,
		string(e.PID),
		e.Direction,
		e.Kind,
		int64(e.Node),
		int64(e.Group),
		string(e.Peer),
		int64(e.Epoch),
		e.Name,
		e.Detail,
	)
	if err != nil {
		return fmt.Errorf("append event seq %d: %w", e.Seq, err)
	}
	return nil
}
