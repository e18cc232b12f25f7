package harness

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted protocol exercise: a process topology, a
// sequence of lifecycle steps, and assertions on the resulting trees,
// subscriptions, and journal trace.
type Scenario struct {
	// Name uniquely identifies the scenario (and its golden file).
	Name string `yaml:"name"`

	// Description explains what the scenario demonstrates.
	Description string `yaml:"description,omitempty"`

	// Topology is a path to a CUE topology file, relative to the
	// scenario file. Mutually exclusive with Processes.
	Topology string `yaml:"topology,omitempty"`

	// Processes declares the process set inline: one parent plus
	// content processes. Used when no Topology file is given.
	Processes []ProcessSpec `yaml:"processes,omitempty"`

	// RunToken is a fixed run id for deterministic golden traces.
	// Defaults to "run-" + Name.
	RunToken string `yaml:"run_token,omitempty"`

	// Steps is the scripted flow. The runner settles all process loops
	// after every step, so each step observes the previous one's full
	// protocol fallout.
	Steps []Step `yaml:"steps"`

	// Asserts validate final state and the recorded trace.
	Asserts []Assertion `yaml:"asserts,omitempty"`

	// dir is the directory the scenario was loaded from, for resolving
	// the Topology path.
	dir string
}

// ProcessSpec declares one process inline.
type ProcessSpec struct {
	PID  string `yaml:"pid"`
	Role string `yaml:"role"` // "parent" | "content"
	// Ordinal partitions the id space; defaults to declaration order.
	Ordinal uint64 `yaml:"ordinal,omitempty"`
}

// Step is one scripted operation.
//
// Supported ops:
//   - create:  process, node, name, parent (0 = root), chrome (parent only)
//   - attach:  process, node, parent
//   - detach:  process, node
//   - setname: process, node, name
//   - background: process, node — mark the context not presented
//   - ref:     process, node — acquire an extra live reference
//   - release: process, node — release one harness-tracked reference
//   - kill:    node — parent kills the subtree and runs the death round
//   - share:   node, to — parent shares the node's group with a process
//   - exit:    process — content process terminates
type Step struct {
	Op      string `yaml:"op"`
	Process string `yaml:"process,omitempty"`
	Node    uint64 `yaml:"node,omitempty"`
	Parent  uint64 `yaml:"parent,omitempty"`
	Name    string `yaml:"name,omitempty"`
	To      string `yaml:"to,omitempty"`
	Chrome  bool   `yaml:"chrome,omitempty"`
}

// Assertion validates final state or the journal trace.
//
// Supported types:
//   - state:       process, node, state ("active" | "dead" | "absent")
//   - parent:      process, node, parent (0 = none)
//   - children:    process, node, children (live children, attach order)
//   - subscribers: node, subscribers (parent-side group subscribers)
//   - epoch:       node, process, epoch (parent-side recorded epoch)
//   - known:       process, node, known (node's group known there)
//   - registry:    process, count (registered node count)
//   - journal:     kind, direction (optional), count
type Assertion struct {
	Type        string   `yaml:"type"`
	Process     string   `yaml:"process,omitempty"`
	Node        uint64   `yaml:"node,omitempty"`
	Parent      uint64   `yaml:"parent,omitempty"`
	State       string   `yaml:"state,omitempty"`
	Children    []uint64 `yaml:"children,omitempty"`
	Subscribers []string `yaml:"subscribers,omitempty"`
	Epoch       uint64   `yaml:"epoch,omitempty"`
	Known       *bool    `yaml:"known,omitempty"`
	Kind        string   `yaml:"kind,omitempty"`
	Direction   string   `yaml:"direction,omitempty"`
	Count       *int     `yaml:"count,omitempty"`
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load scenario: %w", err)
	}
	sc, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("load scenario %s: %w", path, err)
	}
	sc.dir = filepath.Dir(path)
	return sc, nil
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := sc.validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (s *Scenario) validate() error {
	if s.Name == "" {
		return &ScenarioError{Field: "name", Message: "name is required"}
	}
	if s.Topology != "" && len(s.Processes) > 0 {
		return &ScenarioError{Field: "topology", Message: "topology file and inline processes are mutually exclusive"}
	}
	if s.Topology == "" && len(s.Processes) == 0 {
		return &ScenarioError{Field: "processes", Message: "a topology file or inline processes are required"}
	}

	parents := 0
	seen := map[string]bool{}
	for i, p := range s.Processes {
		if p.PID == "" {
			return &ScenarioError{Field: "processes", Message: fmt.Sprintf("process %d: pid is required", i)}
		}
		if seen[p.PID] {
			return &ScenarioError{Field: "processes", Message: fmt.Sprintf("duplicate pid %q", p.PID)}
		}
		seen[p.PID] = true
		switch p.Role {
		case "parent":
			parents++
		case "content":
		default:
			return &ScenarioError{Field: "processes", Message: fmt.Sprintf("process %q: unknown role %q", p.PID, p.Role)}
		}
	}
	if len(s.Processes) > 0 && parents != 1 {
		return &ScenarioError{Field: "processes", Message: "exactly one parent process is required"}
	}

	for i, st := range s.Steps {
		if err := st.validate(); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}
	for i, a := range s.Asserts {
		if err := a.validate(); err != nil {
			return fmt.Errorf("assert %d: %w", i, err)
		}
	}
	return nil
}

func (s *Step) validate() error {
	switch s.Op {
	case "create", "attach", "detach", "ref", "release", "setname", "background":
		if s.Process == "" || s.Node == 0 {
			return &ScenarioError{Field: s.Op, Message: "process and node are required"}
		}
	case "kill":
		if s.Node == 0 {
			return &ScenarioError{Field: "kill", Message: "node is required"}
		}
	case "share":
		if s.Node == 0 || s.To == "" {
			return &ScenarioError{Field: "share", Message: "node and to are required"}
		}
	case "exit":
		if s.Process == "" {
			return &ScenarioError{Field: "exit", Message: "process is required"}
		}
	default:
		return &ScenarioError{Field: "op", Message: fmt.Sprintf("unknown op %q", s.Op)}
	}
	return nil
}

func (a *Assertion) validate() error {
	switch a.Type {
	case "state":
		if a.Process == "" || a.Node == 0 || a.State == "" {
			return &ScenarioError{Field: "state", Message: "process, node and state are required"}
		}
	case "parent", "children":
		if a.Process == "" || a.Node == 0 {
			return &ScenarioError{Field: a.Type, Message: "process and node are required"}
		}
	case "subscribers":
		if a.Node == 0 {
			return &ScenarioError{Field: "subscribers", Message: "node is required"}
		}
	case "epoch":
		if a.Node == 0 || a.Process == "" {
			return &ScenarioError{Field: "epoch", Message: "node and process are required"}
		}
	case "known":
		if a.Process == "" || a.Node == 0 || a.Known == nil {
			return &ScenarioError{Field: "known", Message: "process, node and known are required"}
		}
	case "registry":
		if a.Process == "" || a.Count == nil {
			return &ScenarioError{Field: "registry", Message: "process and count are required"}
		}
	case "journal":
		if a.Kind == "" || a.Count == nil {
			return &ScenarioError{Field: "journal", Message: "kind and count are required"}
		}
	default:
		return &ScenarioError{Field: "type", Message: fmt.Sprintf("unknown assertion type %q", a.Type)}
	}
	return nil
}

// ScenarioError is a structured scenario validation failure.
type ScenarioError struct {
	Field   string
	Message string
}

func (e *ScenarioError) Error() string {
	return fmt.Sprintf("scenario %s: %s", e.Field, e.Message)
}
