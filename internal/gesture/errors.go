package gesture

import (
	"errors"
	"maps"
	"slices"

	"github.com/specialistvlad/graphedit/internal/dragmerge"
	"github.com/specialistvlad/graphedit/internal/edgecreate"
	"github.com/specialistvlad/graphedit/internal/graphstore"
)

// ErrorNames maps stable, host-facing names to the errors gestures fail
// with.
var ErrorNames = map[string]error{
	"no_creation_hints":  edgecreate.ErrNoCreationHints,
	"not_creating":       edgecreate.ErrNotCreating,
	"no_valid_target":    edgecreate.ErrNoValidTarget,
	"canvas_occupied":    edgecreate.ErrCanvasOccupied,
	"no_preferred_type":  edgecreate.ErrNoPreferredType,
	"illegal_conversion": edgecreate.ErrIllegalConversion,
	"busy":               edgecreate.ErrBusy,
	"empty_selection":    dragmerge.ErrEmptySelection,
	"gesture_active":     ErrGestureActive,
	"not_found":          graphstore.ErrNotFound,
	"cyclic_parent":      graphstore.ErrCyclicParent,
}

// ErrorName returns the name of the first entry of ErrorNames that err
// matches, or "internal".
func ErrorName(err error) string {
	for _, name := range slices.Sorted(maps.Keys(ErrorNames)) {
		if errors.Is(err, ErrorNames[name]) {
			return name
		}
	}
	return "internal"
}
