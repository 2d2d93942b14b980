package script

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"github.com/specialistvlad/graphedit/internal/constraint"
	"github.com/specialistvlad/graphedit/internal/diagram"
	"github.com/specialistvlad/graphedit/internal/geom"
	"github.com/specialistvlad/graphedit/internal/graphstore"
	"gopkg.in/yaml.v3"
)

// Scene is a graph snapshot: the graph a script starts from, or the graph a
// host loads before editing.
type Scene struct {
	Nodes []SceneNode `json:"nodes" yaml:"nodes"`
	Edges []SceneEdge `json:"edges,omitempty" yaml:"edges"`
}

type SceneNode struct {
	ID       string            `json:"id" yaml:"id"`
	Type     diagram.Type      `json:"type" yaml:"type"`
	Bounds   geom.Rect         `json:"bounds" yaml:"bounds"`
	Parent   string            `json:"parent,omitempty" yaml:"parent,omitempty"`
	Features map[string]string `json:"features,omitempty" yaml:"features,omitempty"`
	Labels   map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
}

type SceneEdge struct {
	ID    string       `json:"id" yaml:"id"`
	Type  diagram.Type `json:"type" yaml:"type"`
	From  string       `json:"from" yaml:"from"`
	To    string       `json:"to" yaml:"to"`
	Bends []geom.Point `json:"bends,omitempty" yaml:"bends,omitempty"`
}

// Handles maps scene names to the handles the store assigned.
type Handles struct {
	Nodes map[string]diagram.NodeID `json:"nodes"`
	Edges map[string]diagram.EdgeID `json:"edges"`
}

// Validate checks that names are unique and that parents and edge endpoints
// refer to nodes declared earlier.
func (sc Scene) Validate() error {
	names := make(map[string]bool)
	for i, n := range sc.Nodes {
		if n.ID == "" || n.Type == "" {
			return fmt.Errorf("scene node %d needs id and type: %w", i, ErrInvalidScript)
		}
		if names[n.ID] {
			return fmt.Errorf("scene node %q declared twice: %w", n.ID, ErrInvalidScript)
		}
		// Parents come first so the scene can be built in one pass.
		if n.Parent != "" && !names[n.Parent] {
			return fmt.Errorf("scene node %q: parent %q not declared before it: %w", n.ID, n.Parent, ErrInvalidScript)
		}
		names[n.ID] = true
	}
	edges := make(map[string]bool)
	for i, e := range sc.Edges {
		if e.ID == "" || e.Type == "" || !names[e.From] || !names[e.To] {
			return fmt.Errorf("scene edge %d needs id, type and known from/to nodes: %w", i, ErrInvalidScript)
		}
		if edges[e.ID] {
			return fmt.Errorf("scene edge %q declared twice: %w", e.ID, ErrInvalidScript)
		}
		edges[e.ID] = true
	}
	return nil
}

// AddTo adds the scene to g. Edges attach to a default port at the center
// of each endpoint. The caller owns the transaction.
func (sc Scene) AddTo(g graphstore.Store) (Handles, error) {
	h := Handles{
		Nodes: make(map[string]diagram.NodeID, len(sc.Nodes)),
		Edges: make(map[string]diagram.EdgeID, len(sc.Edges)),
	}
	for _, n := range sc.Nodes {
		id, err := g.AddNode(graphstore.NodeSpec{
			Type:     n.Type,
			Bounds:   n.Bounds,
			Parent:   h.Nodes[n.Parent],
			Features: n.Features,
		})
		if err != nil {
			return h, fmt.Errorf("node %q: %w", n.ID, err)
		}
		h.Nodes[n.ID] = id
		for _, typ := range slices.Sorted(maps.Keys(n.Labels)) {
			if _, err := g.AddLabel(string(id), diagram.Type(typ), n.Labels[typ]); err != nil {
				return h, fmt.Errorf("label %q of node %q: %w", typ, n.ID, err)
			}
		}
	}
	for _, e := range sc.Edges {
		id, err := addEdge(g, e, h.Nodes[e.From], h.Nodes[e.To])
		if err != nil {
			return h, fmt.Errorf("edge %q: %w", e.ID, err)
		}
		h.Edges[e.ID] = id
	}
	return h, nil
}

func addEdge(g graphstore.Store, e SceneEdge, fromID, toID diagram.NodeID) (diagram.EdgeID, error) {
	from, ok := g.Node(fromID)
	if !ok {
		return "", fmt.Errorf("source %q: %w", e.From, graphstore.ErrNotFound)
	}
	to, ok := g.Node(toID)
	if !ok {
		return "", fmt.Errorf("target %q: %w", e.To, graphstore.ErrNotFound)
	}
	src, err := g.AddPort(from.ID, constraint.DefaultPortType, from.Bounds.Center())
	if err != nil {
		return "", err
	}
	tgt, err := g.AddPort(to.ID, constraint.DefaultPortType, to.Bounds.Center())
	if err != nil {
		return "", err
	}
	id, err := g.AddEdge(e.Type, src, tgt)
	if err != nil {
		return "", err
	}
	if len(e.Bends) > 0 {
		if err := g.SetEdgeBends(id, e.Bends); err != nil {
			return "", err
		}
	}
	return id, nil
}

// LoadSceneFile reads a YAML scene, the same shape as a script's scene
// section.
func LoadSceneFile(path string) (Scene, error) {
	var sc Scene
	data, err := os.ReadFile(path)
	if err != nil {
		return sc, fmt.Errorf("reading scene: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		if errors.Is(err, io.EOF) {
			return sc, fmt.Errorf("%s: empty document: %w", path, ErrInvalidScript)
		}
		return sc, fmt.Errorf("%s: decoding scene: %w", path, err)
	}
	if err := sc.Validate(); err != nil {
		return sc, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}
