package ioutils

import (
	"io"
	"os"
	"path/filepath"

	digest "github.com/opencontainers/go-digest"
)

// AtomicWriteFile atomically writes data to a file specified by filename. A
// crash part way through leaves either the old content or the new content in
// place, never a mix of both.
func AtomicWriteFile(filename string, data []byte, perm os.FileMode) error {
	f, err := os.CreateTemp(filepath.Dir(filename), ".tmp-"+filepath.Base(filename))
	if err != nil {
		return err
	}
	tmpName := f.Name()

	err = writeSyncClose(f, data, perm)
	if err == nil {
		err = os.Rename(tmpName, filename)
	}
	if err != nil {
		os.Remove(tmpName)
	}
	return err
}

func writeSyncClose(f *os.File, data []byte, perm os.FileMode) error {
	defer f.Close()

	if err := os.Chmod(f.Name(), perm); err != nil {
		return err
	}

	n, err := f.Write(data)
	if err == nil && n < len(data) {
		return io.ErrShortWrite
	}
	if err != nil {
		return err
	}

	return f.Sync()
}

// FileDigest returns the sha256 digest of the file at path. A missing file
// yields an empty digest and no error.
func FileDigest(path string) (digest.Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	defer f.Close()

	return digest.Canonical.FromReader(f)
}

// SameContent reports whether the file at path holds exactly data.
func SameContent(path string, data []byte) (bool, error) {
	current, err := FileDigest(path)
	if err != nil || current == "" {
		return false, err
	}
	return current == digest.FromBytes(data), nil
}
