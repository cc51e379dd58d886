package log

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Reader iterates JSONL records from a .jsonl.zst file, or from every
// such file in a directory in name order (names embed the hour, so
// lexicographic is chronological).
type Reader struct {
	paths []string
	idx   int

	f   *os.File
	dec *zstd.Decoder
	jd  *json.Decoder
}

func OpenReader(path string) (*Reader, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return &Reader{paths: []string{path}}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl.zst") {
			continue
		}
		paths = append(paths, filepath.Join(path, e.Name()))
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no .jsonl.zst files in %s", path)
	}
	sort.Strings(paths)
	return &Reader{paths: paths}, nil
}

// Next decodes the next record into v. Returns io.EOF after the last
// record of the last file.
func (r *Reader) Next(v any) error {
	for {
		if r.jd == nil {
			if r.idx >= len(r.paths) {
				return io.EOF
			}
			f, err := os.Open(r.paths[r.idx])
			if err != nil {
				return err
			}
			dec, err := zstd.NewReader(f)
			if err != nil {
				_ = f.Close()
				return err
			}
			r.f, r.dec, r.jd = f, dec, json.NewDecoder(dec)
			r.idx++
		}

		err := r.jd.Decode(v)
		if err == nil {
			return nil
		}
		r.closeCurrent()
		if errors.Is(err, io.EOF) {
			continue
		}
		return err
	}
}

func (r *Reader) Close() error {
	r.closeCurrent()
	r.idx = len(r.paths)
	return nil
}

func (r *Reader) closeCurrent() {
	if r.dec != nil {
		r.dec.Close()
		r.dec = nil
	}
	if r.f != nil {
		_ = r.f.Close()
		r.f = nil
	}
	r.jd = nil
}
