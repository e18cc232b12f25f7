package journal

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/bctree/internal/bctx"
)

// Filter selects journal events. Zero fields do not constrain. All values
// are parameterized, never interpolated, and every query orders by seq so
// results are deterministic.
type Filter struct {
	Run       string
	PID       bctx.ProcessID
	Direction string
	Kind      string
	Node      bctx.NodeID
	Group     bctx.GroupID
	// AfterSeq returns only events with seq strictly greater.
	AfterSeq int64
	// Limit caps the result count; 0 means unlimited.
	Limit int
}

// compile builds the parameterized WHERE clause for the filter.
func (f Filter) compile() (string, []any) {
	var conds []string
	var params []any

	add := func(cond string, v any) {
		conds = append(conds, cond)
		params = append(params, v)
	}

	if f.Run != "" {
		add("run_id = ?", f.Run)
	}
	if f.PID != "" {
		add("pid = ?", string(f.PID))
	}
	if f.Direction != "" {
		add("direction = ?", f.Direction)
	}
	if f.Kind != "" {
		add("kind = ?", f.Kind)
	}
	if f.Node != 0 {
		add("node_id = ?", int64(f.Node))
	}
	if f.Group != 0 {
		add("group_id = ?", int64(f.Group))
	}
	if f.AfterSeq != 0 {
		add("seq > ?", f.AfterSeq)
	}

	sql := "SELECT seq, run_id, pid, direction, kind, node_id, group_id, peer, epoch, name, detail FROM events"
	if len(conds) > 0 {
		sql += " WHERE " + strings.Join(conds, " AND ")
	}
	sql += " ORDER BY seq"
	if f.Limit > 0 {
		sql += " LIMIT ?"
		params = append(params, f.Limit)
	}
	return sql, params
}

// List returns the events matching the filter in sequence order.
func (j *Journal) List(ctx context.Context, f Filter) ([]Event, error) {
	query, params := f.compile()
	rows, err := j.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e                  Event
			pid, peer          string
			node, group, epoch int64
		)
		if err := rows.Scan(&e.Seq, &e.Run, &pid, &e.Direction, &e.Kind,
			&node, &group, &peer, &epoch, &e.Name, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.PID = bctx.ProcessID(pid)
		e.Peer = bctx.ProcessID(peer)
		e.Node = bctx.NodeID(node)
		e.Group = bctx.GroupID(group)
		e.Epoch = uint64(epoch)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return out, nil
}

// Runs returns the distinct run ids present in the journal, oldest first.
func (j *Journal) Runs(ctx context.Context) ([]string, error) {
	rows, err := j.db.QueryContext(ctx,
		"SELECT run_id FROM events GROUP BY run_id ORDER BY MIN(seq)")
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var run string
		if err := rows.Scan(&run); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}
