// Package highlight carries feedback requests from the gesture engines to
// the scene host, which renders them.
package highlight

import (
	"context"
	"slices"
	"sync"

	"github.com/specialistvlad/graphedit/internal/ctxlog"
	"github.com/specialistvlad/graphedit/internal/diagram"
	"github.com/specialistvlad/graphedit/internal/geom"
)

// Label distinguishes kinds of feedback.
type Label string

const (
	// MergeTarget marks the node a dropped template will merge into.
	MergeTarget Label = "merge"
	// ActiveParent marks a node that will become the parent of the drop.
	ActiveParent Label = "parent"
	// PortValid, PortInvalid and PortClosest mark connection candidates.
	PortValid   Label = "port-valid"
	PortInvalid Label = "port-invalid"
	PortClosest Label = "port-closest"
)

// Request is one highlight. Location is set for port candidates.
type Request struct {
	Node     diagram.NodeID `json:"node"`
	Port     diagram.PortID `json:"port,omitempty"`
	Location geom.Point     `json:"location"`
	Label    Label          `json:"label"`
}

// Sink renders feedback. Clear removes every highlight previously requested
// through the sink.
type Sink interface {
	Highlight(r Request)
	Clear()
}

// Discard is a Sink that ignores everything.
var Discard Sink = discard{}

type discard struct{}

func (discard) Highlight(Request) {}
func (discard) Clear()            {}

// Recorder is a Sink that keeps the currently shown highlights. It is safe
// for concurrent use so a transport goroutine may read it.
type Recorder struct {
	mu     sync.Mutex
	shown  []Request
	clears int
}

func (r *Recorder) Highlight(req Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shown = append(r.shown, req)
}

func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shown = nil
	r.clears++
}

// Shown returns the highlights requested since the last Clear.
func (r *Recorder) Shown() []Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.shown)
}

// Clears returns how many times Clear was called.
func (r *Recorder) Clears() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clears
}

// WithLabel returns the shown highlights carrying label.
func (r *Recorder) WithLabel(label Label) []Request {
	var out []Request
	for _, req := range r.Shown() {
		if req.Label == label {
			out = append(out, req)
		}
	}
	return out
}

// Tee fans every request out to several sinks.
type Tee []Sink

func (t Tee) Highlight(r Request) {
	for _, s := range t {
		s.Highlight(r)
	}
}

func (t Tee) Clear() {
	for _, s := range t {
		s.Clear()
	}
}

// LogSink writes feedback to the logger in ctx at debug level.
type LogSink struct {
	Ctx context.Context
}

func (l LogSink) Highlight(r Request) {
	ctxlog.FromContext(l.Ctx).Debug("Highlight requested.", "node", r.Node, "port", r.Port, "label", r.Label)
}

func (l LogSink) Clear() {
	ctxlog.FromContext(l.Ctx).Debug("Highlights cleared.")
}
