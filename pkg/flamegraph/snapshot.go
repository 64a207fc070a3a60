package flamegraph

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"

	spyerrors "github.com/danpilch/stackspy/pkg/errors"
)

// CompressedExt marks snapshot files stored zstd-compressed.
const CompressedExt = ".zst"

// WriteSnapshot encodes the aggregator as a raw snapshot document:
//
//	{"show_line_numbers": true, "counts": {"<path>": {"<bucket>": <count>}}}
func (f *Flamegraph) WriteSnapshot(w io.Writer) error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(f); err != nil {
		return spyerrors.NewSerialization("cannot encode raw snapshot", err)
	}
	return nil
}

// ReadSnapshot decodes a raw snapshot document.
func ReadSnapshot(r io.Reader) (*Flamegraph, error) {
	var f Flamegraph
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, spyerrors.NewSerialization("cannot decode raw snapshot", err)
	}
	if f.Counts == nil {
		f.Counts = make(Counts)
	}
	for path, buckets := range f.Counts {
		for ts, n := range buckets {
			if n == 0 {
				delete(buckets, ts)
			}
		}
		if len(buckets) == 0 {
			delete(f.Counts, path)
		}
	}
	return &f, nil
}

type zstdWriteCloser struct {
	*zstd.Encoder
	file *os.File
}

func (z *zstdWriteCloser) Close() error {
	if err := z.Encoder.Close(); err != nil {
		z.file.Close()
		return err
	}
	return z.file.Close()
}

type zstdReadCloser struct {
	*zstd.Decoder
	file *os.File
}

func (z *zstdReadCloser) Close() error {
	z.Decoder.Close()
	return z.file.Close()
}

// Create opens path for writing, compressing with zstd when path ends in CompressedExt.
func Create(path string) (io.WriteCloser, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, CompressedExt) {
		return file, nil
	}
	enc, err := zstd.NewWriter(file, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("cannot create zstd encoder: %w", err)
	}
	return &zstdWriteCloser{Encoder: enc, file: file}, nil
}

// Open opens path for reading, decompressing when path ends in CompressedExt.
func Open(path string) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, CompressedExt) {
		return file, nil
	}
	dec, err := zstd.NewReader(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("cannot create zstd decoder: %w", err)
	}
	return &zstdReadCloser{Decoder: dec, file: file}, nil
}

// WriteRaw persists f as a raw snapshot file.
func WriteRaw(f *Flamegraph, path string) error {
	w, err := Create(path)
	if err != nil {
		return spyerrors.NewSerialization(fmt.Sprintf("cannot create %q", path), err)
	}
	if err := f.WriteSnapshot(w); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return spyerrors.NewSerialization(fmt.Sprintf("cannot write %q", path), err)
	}
	return nil
}

// ReadRaw loads a raw snapshot file.
func ReadRaw(path string) (*Flamegraph, error) {
	r, err := Open(path)
	if err != nil {
		return nil, spyerrors.NewSerialization(fmt.Sprintf("cannot open %q", path), err)
	}
	defer r.Close()
	return ReadSnapshot(r)
}
