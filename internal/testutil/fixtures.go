package testutil

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/specialistvlad/graphedit/internal/constraint"
	"github.com/specialistvlad/graphedit/internal/ctxlog"
	"github.com/specialistvlad/graphedit/internal/diagram"
	"github.com/specialistvlad/graphedit/internal/geom"
	"github.com/specialistvlad/graphedit/internal/graphstore"
	"github.com/specialistvlad/graphedit/internal/inmemorygraph"
	"github.com/stretchr/testify/require"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// Context returns a background context carrying a debug logger that writes
// into the returned buffer.
func Context(t *testing.T) (context.Context, *SafeBuffer) {
	t.Helper()
	buf := &SafeBuffer{}
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return ctxlog.WithLogger(context.Background(), logger), buf
}

// RulesHCL is the HCL rendering of Rules. The rules package loads it in its
// tests; both must stay in sync.
const RulesHCL = `
node "pool" {
  children       = ["lane", "task", "user_task", "start_event", "end_event"]
  default_size   = [600, 300]
}

node "lane" {
  children     = ["task", "user_task", "start_event", "end_event"]
  default_size = [600, 150]
}

node "task" {
  converts_to    = ["user_task", "service_task"]
  accepts_labels = ["name"]
  dynamic_ports  = true
  default_size   = [100, 60]
}

node "user_task" {
  accepts_labels = ["name"]
  default_size   = [100, 60]
  features       = { marker = "user" }
}

node "start_event" {
  converts_to  = ["timer_start_event"]
  default_size = [36, 36]
}

node "timer_start_event" {
  default_size = [36, 36]
  features     = { trigger = "timer" }
}

node "end_event" {
  default_size = [36, 36]
}

edge "sequence_flow" {
  from             = ["start_event", "timer_start_event", "task", "user_task"]
  to               = ["task", "user_task", "end_event"]
  preferred_target = "task"
  convertible_to   = ["message_flow"]
}

edge "message_flow" {
  from             = ["task", "user_task"]
  to               = ["task", "user_task", "start_event"]
  offer_reversed   = true
  preferred_source = "task"
  convertible_to   = ["sequence_flow"]
}
`

// Rules returns a small process-notation rule table used across tests.
//
// Hints offered by type:
//
//	start_event: sequence_flow, message_flow (reversed)
//	task:        sequence_flow, message_flow, message_flow (reversed)
//	end_event:   none
func Rules() *constraint.Table {
	t := constraint.NewTable()
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	must(t.AddNodeRule(constraint.NodeRule{
		Type:          "pool",
		Children:      []diagram.Type{"lane", "task", "user_task", "start_event", "end_event"},
		DefaultWidth:  600,
		DefaultHeight: 300,
	}))
	must(t.AddNodeRule(constraint.NodeRule{
		Type:          "lane",
		Children:      []diagram.Type{"task", "user_task", "start_event", "end_event"},
		DefaultWidth:  600,
		DefaultHeight: 150,
	}))
	must(t.AddNodeRule(constraint.NodeRule{
		Type:          "task",
		ConvertsTo:    []diagram.Type{"user_task", "service_task"},
		AcceptsLabels: []diagram.Type{"name"},
		DynamicPorts:  true,
		DefaultWidth:  100,
		DefaultHeight: 60,
	}))
	must(t.AddNodeRule(constraint.NodeRule{
		Type:          "user_task",
		AcceptsLabels: []diagram.Type{"name"},
		DefaultWidth:  100,
		DefaultHeight: 60,
		Features:      map[string]string{"marker": "user"},
	}))
	must(t.AddNodeRule(constraint.NodeRule{
		Type:          "start_event",
		ConvertsTo:    []diagram.Type{"timer_start_event"},
		DefaultWidth:  36,
		DefaultHeight: 36,
	}))
	must(t.AddNodeRule(constraint.NodeRule{
		Type:          "timer_start_event",
		DefaultWidth:  36,
		DefaultHeight: 36,
		Features:      map[string]string{"trigger": "timer"},
	}))
	must(t.AddNodeRule(constraint.NodeRule{
		Type:          "end_event",
		DefaultWidth:  36,
		DefaultHeight: 36,
	}))
	must(t.AddEdgeRule(constraint.EdgeRule{
		Type:            "sequence_flow",
		From:            []diagram.Type{"start_event", "timer_start_event", "task", "user_task"},
		To:              []diagram.Type{"task", "user_task", "end_event"},
		PreferredTarget: "task",
		ConvertibleTo:   []diagram.Type{"message_flow"},
	}))
	must(t.AddEdgeRule(constraint.EdgeRule{
		Type:            "message_flow",
		From:            []diagram.Type{"task", "user_task"},
		To:              []diagram.Type{"task", "user_task", "start_event"},
		OfferReversed:   true,
		PreferredSource: "task",
		ConvertibleTo:   []diagram.Type{"sequence_flow"},
	}))
	return t
}

// NewStore returns an empty in-memory store with predictable handles.
func NewStore() *inmemorygraph.Store {
	return inmemorygraph.New(inmemorygraph.WithSequentialIDs())
}

// AddNode creates a node and fails the test on error.
func AddNode(t *testing.T, s graphstore.Store, typ diagram.Type, bounds geom.Rect, parent diagram.NodeID) diagram.NodeID {
	t.Helper()
	id, err := s.AddNode(graphstore.NodeSpec{Type: typ, Bounds: bounds, Parent: parent})
	require.NoError(t, err)
	return id
}

// AddPort creates a port at the center of its owner.
func AddPort(t *testing.T, s graphstore.Store, owner diagram.NodeID) diagram.PortID {
	t.Helper()
	n, ok := s.Node(owner)
	require.True(t, ok, "owner %s must exist", owner)
	id, err := s.AddPort(owner, constraint.DefaultPortType, n.Bounds.Center())
	require.NoError(t, err)
	return id
}

// Connect creates an edge of the given type between fresh ports on both nodes.
func Connect(t *testing.T, s graphstore.Store, from, to diagram.NodeID, typ diagram.Type) diagram.EdgeID {
	t.Helper()
	id, err := s.AddEdge(typ, AddPort(t, s, from), AddPort(t, s, to))
	require.NoError(t, err)
	return id
}

// Endpoints returns the owners of an edge's source and target ports.
func Endpoints(t *testing.T, r graphstore.Reader, id diagram.EdgeID) (source, target diagram.NodeID) {
	t.Helper()
	e, ok := r.Edge(id)
	require.True(t, ok, "edge %s must exist", id)
	source, ok = r.PortOwner(e.Source)
	require.True(t, ok)
	target, ok = r.PortOwner(e.Target)
	require.True(t, ok)
	return source, target
}
