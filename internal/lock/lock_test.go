package lock

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAcquireIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.pid")

	first, err := Acquire(zap.NewNop(), path)
	require.NoError(t, err)
	assert.Equal(t, path, first.Path())

	_, err = Acquire(zap.NewNop(), path)
	assert.ErrorIs(t, err, ErrHeld)

	require.NoError(t, first.Release())

	second, err := Acquire(zap.NewNop(), path)
	require.NoError(t, err)
	require.NoError(t, second.Release())
}

func TestReleaseTwice(t *testing.T) {
	l, err := Acquire(zap.NewNop(), filepath.Join(t.TempDir(), "run.pid"))
	require.NoError(t, err)

	assert.NoError(t, l.Release())
	assert.NoError(t, l.Release())
}

func TestAcquireMissingDirectory(t *testing.T) {
	_, err := Acquire(zap.NewNop(), filepath.Join(t.TempDir(), "missing", "run.pid"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrHeld)
}
