// Package script drives the gesture controller from YAML event scripts, so
// gestures can be replayed and checked without a UI.
//
// A script declares an initial scene, a list of input steps, and the graph
// it expects at the end:
//
//	name: reversed canvas release
//	scene:
//	  nodes:
//	    - {id: a, type: start_event, bounds: {x: 0, y: 0, w: 36, h: 36}}
//	steps:
//	  - {action: begin_edge, node: a}
//	  - {action: cycle}
//	  - {action: bend, at: {x: 100, y: 18}}
//	  - {action: complete, at: {x: 400, y: 300}, as: b, edge_as: e}
//	expect:
//	  nodes: 2
//	  edges: {e: {type: message_flow, source: b, target: a}}
//
// Scene and step references use script-local names; nodes and edges created
// by steps can be named with as and edge_as.
package script

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/specialistvlad/graphedit/internal/diagram"
	"github.com/specialistvlad/graphedit/internal/geom"
	"github.com/specialistvlad/graphedit/internal/gesture"
	"gopkg.in/yaml.v3"
)

// Action names a step.
type Action string

const (
	BeginEdge Action = "begin_edge"
	Cycle     Action = "cycle"
	Move      Action = "move"
	Bend      Action = "bend"
	Complete  Action = "complete"
	Cancel    Action = "cancel"
	Retype    Action = "retype"
	StartDrag Action = "start_drag"
	DragMove  Action = "drag_move"
	Drop      Action = "drop"
	CancelAll Action = "cancel_all"
)

var knownActions = map[Action]bool{
	BeginEdge: true, Cycle: true, Move: true, Bend: true, Complete: true, Cancel: true,
	Retype: true, StartDrag: true, DragMove: true, Drop: true, CancelAll: true,
}

// ErrInvalidScript is wrapped by every load-time validation error.
var ErrInvalidScript = errors.New("script: invalid script")

// Script is a decoded event script.
type Script struct {
	Name   string `yaml:"name"`
	Scene  Scene  `yaml:"scene"`
	Steps  []Step `yaml:"steps"`
	Expect Expect `yaml:"expect"`
}

// Step is one input event.
type Step struct {
	Action   Action      `yaml:"action"`
	Node     string      `yaml:"node,omitempty"`
	Nodes    []string    `yaml:"nodes,omitempty"`
	Edge     string      `yaml:"edge,omitempty"`
	At       *geom.Point `yaml:"at,omitempty"`
	Modifier bool        `yaml:"modifier,omitempty"`

	// Retype target.
	Type     diagram.Type `yaml:"type,omitempty"`
	Reversed bool         `yaml:"reversed,omitempty"`

	// Drop presentation overrides.
	Width     float64      `yaml:"width,omitempty"`
	Height    float64      `yaml:"height,omitempty"`
	Label     string       `yaml:"label,omitempty"`
	LabelType diagram.Type `yaml:"label_type,omitempty"`

	// As names the node created by a complete step; EdgeAs names its edge.
	As     string `yaml:"as,omitempty"`
	EdgeAs string `yaml:"edge_as,omitempty"`

	// ExpectError names the error the step must fail with, see
	// gesture.ErrorNames.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Expect describes the final graph. Unset fields are not checked.
type Expect struct {
	Nodes     *int                         `yaml:"nodes,omitempty"`
	EdgeCount *int                         `yaml:"edge_count,omitempty"`
	Types     map[string]diagram.Type      `yaml:"types,omitempty"`
	Parents   map[string]string            `yaml:"parents,omitempty"`
	Features  map[string]map[string]string `yaml:"features,omitempty"`
	Missing   []string                     `yaml:"missing,omitempty"`
	Edges     map[string]ExpectEdge        `yaml:"edges,omitempty"`
}

type ExpectEdge struct {
	Type   diagram.Type `yaml:"type,omitempty"`
	Source string       `yaml:"source,omitempty"`
	Target string       `yaml:"target,omitempty"`
	Bends  []geom.Point `yaml:"bends,omitempty"`
}

// Load decodes and validates a script. Unknown keys are rejected.
func Load(r io.Reader) (*Script, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var s Script
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty document: %w", ErrInvalidScript)
		}
		return nil, fmt.Errorf("decoding script: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadFile reads a script from path.
func LoadFile(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	s, err := Load(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = path
	}
	return s, nil
}

func (s *Script) validate() error {
	if err := s.Scene.Validate(); err != nil {
		return err
	}
	for i, st := range s.Steps {
		if !knownActions[st.Action] {
			return fmt.Errorf("step %d: unknown action %q: %w", i+1, st.Action, ErrInvalidScript)
		}
		if st.ExpectError != "" {
			if _, ok := gesture.ErrorNames[st.ExpectError]; !ok {
				return fmt.Errorf("step %d: unknown expected error %q: %w", i+1, st.ExpectError, ErrInvalidScript)
			}
		}
		switch st.Action {
		case Move, Bend, Complete, StartDrag, DragMove, Drop:
			if st.At == nil {
				return fmt.Errorf("step %d (%s) needs at: %w", i+1, st.Action, ErrInvalidScript)
			}
		}
	}
	return nil
}
