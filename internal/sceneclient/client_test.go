package sceneclient

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectError(t *testing.T) {
	refused := errors.New("connection refused")
	assert.Same(t, refused, connectError(refused))
	assert.EqualError(t, connectError(map[string]any{"message": "xhr poll error"}), "map[message:xhr poll error]")

	// The event may fire without arguments.
	require.Error(t, connectError())
	require.Error(t, connectError(nil))
}
