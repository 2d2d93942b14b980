package sceneclient

import (
	"context"

	"github.com/specialistvlad/graphedit/internal/ctxlog"
	"github.com/specialistvlad/graphedit/internal/highlight"
)

// Sink forwards highlight requests to the host.
type Sink struct {
	ctx context.Context
	out Emitter
}

var _ highlight.Sink = (*Sink)(nil)

// NewSink returns a sink emitting on out. ctx carries the logger used for
// emit failures.
func NewSink(ctx context.Context, out Emitter) *Sink {
	return &Sink{ctx: ctx, out: out}
}

func (s *Sink) Highlight(r highlight.Request) {
	if err := s.out.Emit(EventHighlight, r); err != nil {
		ctxlog.FromContext(s.ctx).Warn("Failed to send highlight.", "node", r.Node, "label", r.Label, "error", err)
	}
}

func (s *Sink) Clear() {
	if err := s.out.Emit(EventClearHighlight); err != nil {
		ctxlog.FromContext(s.ctx).Warn("Failed to clear highlights.", "error", err)
	}
}
