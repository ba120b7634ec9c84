package ioutils

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/phayes/permbits"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicWriteToFile(t *testing.T) {
	tmpDir := t.TempDir()
	expected := []byte("barbaz")
	err := AtomicWriteFile(filepath.Join(tmpDir, "foo"), expected, 0o600)
	require.NoErrorf(t, err, "Error writing to file: %v", err)

	actual, err := os.ReadFile(filepath.Join(tmpDir, "foo"))
	require.NoErrorf(t, err, "Error reading from file: %v", err)

	require.Truef(t, bytes.Equal(actual, expected), "Data mismatch, expected %q, got %q", expected, actual)

	perms, err := permbits.Stat(filepath.Join(tmpDir, "foo"))
	require.NoError(t, err)
	assert.False(t, perms.GroupRead())
	assert.False(t, perms.OtherRead())
}

func TestAtomicWriteLeavesNoTempFiles(t *testing.T) {
	tmpDir := t.TempDir()
	target := filepath.Join(tmpDir, "config.yml")

	require.NoError(t, AtomicWriteFile(target, []byte("one"), 0o644))
	require.NoError(t, AtomicWriteFile(target, []byte("two"), 0o644))

	entries, err := os.ReadDir(tmpDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "config.yml", entries[0].Name())

	// a missing directory fails without creating anything
	err = AtomicWriteFile(filepath.Join(tmpDir, "missing", "x"), []byte("x"), 0o644)
	assert.Error(t, err)
}

func TestSameContent(t *testing.T) {
	tmpDir := t.TempDir()
	target := filepath.Join(tmpDir, "host.crt")

	same, err := SameContent(target, []byte("cert"))
	require.NoError(t, err)
	assert.False(t, same)

	d, err := FileDigest(target)
	require.NoError(t, err)
	assert.Empty(t, d)

	require.NoError(t, AtomicWriteFile(target, []byte("cert"), 0o644))

	same, err = SameContent(target, []byte("cert"))
	require.NoError(t, err)
	assert.True(t, same)

	same, err = SameContent(target, []byte("cert2"))
	require.NoError(t, err)
	assert.False(t, same)
}
