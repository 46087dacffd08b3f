package portal

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
)

var ErrEmptyArchive = errors.New("archive holds no files")

func Gunzip(blob []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("gunzip: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gunzip: %w", err)
	}
	return out, nil
}

// Unzip returns the first entry of a zip archive. Portals ship one file per
// archive.
func Unzip(blob []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		return nil, fmt.Errorf("unzip: %w", err)
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("unzip %s: %w", f.Name, err)
		}
		out, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("unzip %s: %w", f.Name, err)
		}
		return out, nil
	}
	return nil, ErrEmptyArchive
}

// Decompress sniffs gzip and zip magic bytes and unpacks accordingly. Anything
// else is returned as is.
func Decompress(blob []byte) ([]byte, error) {
	switch {
	case bytes.HasPrefix(blob, []byte{0x1f, 0x8b}):
		return Gunzip(blob)
	case bytes.HasPrefix(blob, []byte("PK\x03\x04")):
		return Unzip(blob)
	default:
		return blob, nil
	}
}
