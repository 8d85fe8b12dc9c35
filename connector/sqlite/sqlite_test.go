package sqlite

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFactoryDeclinesToCreate(t *testing.T) {
	f := Factory()
	require.False(t, f.CanCreate(map[string]any{"path": "/tmp/db.sqlite"}))
	_, err := f.Create(nil)
	require.Error(t, err)
}
