package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// Usage is the on-disk size of each part of a store.
type Usage struct {
	Metadata int64 `json:"metadata_bytes"`
	Index    int64 `json:"index_bytes"`
	Vectors  int64 `json:"vectors_bytes"`
	Files    int   `json:"vector_files"`
}

// Total returns the summed size.
func (u Usage) Total() int64 {
	return u.Metadata + u.Index + u.Vectors
}

// MeasureUsage sizes the metadata file, the index file and the per-id vector directory.
func MeasureUsage(metadataPath, indexPath, vectorsDir string) (Usage, error) {
	var u Usage
	var err error
	if u.Metadata, _, err = sizeOf(metadataPath); err != nil {
		return u, err
	}
	if u.Index, _, err = sizeOf(indexPath); err != nil {
		return u, err
	}
	if u.Vectors, u.Files, err = sizeOf(vectorsDir); err != nil {
		return u, err
	}
	return u, nil
}

// DiskUsageBytes returns the total size in bytes of the given files or directories.
// Missing and empty paths contribute 0.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		n, _, err := sizeOf(p)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// sizeOf returns the size of a file, or the summed size and file count of a directory tree.
func sizeOf(path string) (int64, int, error) {
	if path == "" {
		return 0, 0, nil
	}
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return 0, 0, nil
	case err != nil:
		return 0, 0, err
	case !info.IsDir():
		return info.Size(), 1, nil
	}
	var size int64
	var files int
	err = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		size += fi.Size()
		files++
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return size, files, nil
}
