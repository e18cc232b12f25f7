package harness

import (
	"bytes"
	"encoding/json"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// Trace is the canonical serialized form of a scenario run, used for
// golden comparison and the CLI trace output.
type Trace struct {
	Scenario string       `json:"scenario"`
	Run      string       `json:"run"`
	Events   []TraceEvent `json:"events"`
}

// TraceEvent is one journal row in canonical form. Numeric ids are kept
// as numbers; empty fields are omitted.
type TraceEvent struct {
	Seq       int64  `json:"seq"`
	PID       string `json:"pid"`
	Direction string `json:"direction"`
	Kind      string `json:"kind"`
	Node      uint64 `json:"node,omitempty"`
	Group     uint64 `json:"group,omitempty"`
	Peer      string `json:"peer,omitempty"`
	Epoch     uint64 `json:"epoch,omitempty"`
	Name      string `json:"name,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// CanonicalTrace serializes a result deterministically: text fields are
// NFC-normalized so visually identical names compare equal, HTML
// escaping is off, and output is indented with a trailing newline.
func CanonicalTrace(res *Result) ([]byte, error) {
	tr := Trace{
		Scenario: norm.NFC.String(res.Scenario),
		Run:      norm.NFC.String(res.Run),
		Events:   make([]TraceEvent, 0, len(res.Events)),
	}
	for _, e := range res.Events {
		tr.Events = append(tr.Events, TraceEvent{
			Seq:       e.Seq,
			PID:       string(e.PID),
			Direction: e.Direction,
			Kind:      e.Kind,
			Node:      uint64(e.Node),
			Group:     uint64(e.Group),
			Peer:      string(e.Peer),
			Epoch:     e.Epoch,
			Name:      norm.NFC.String(e.Name),
			Detail:    norm.NFC.String(e.Detail),
		})
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(tr); err != nil {
		return nil, fmt.Errorf("canonical trace: %w", err)
	}
	return buf.Bytes(), nil
}
