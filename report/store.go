package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/weiihann/pybench/harness"
)

const (
	fileTimeLayout = "20060102_150405"
	zstdExt        = ".zst"
)

// maxCollisions bounds the numbered suffixes tried for one timestamp.
const maxCollisions = 1000

// FileName returns the name a report created at t is stored under.
func FileName(t time.Time, compress bool) string {
	return fileName(t, 0, compress)
}

// fileName appends _<seq> to the timestamp for seq > 0.
func fileName(t time.Time, seq int, compress bool) string {
	name := "benchmark_" + t.Format(fileTimeLayout)
	if seq > 0 {
		name += "_" + strconv.Itoa(seq)
	}

	name += ".json"
	if compress {
		name += zstdExt
	}

	return name
}

// Write stores rep as JSON in dir and returns the file path. With compress
// set the file is zstd-compressed. An existing report is never
// overwritten: reports created in the same second get a numbered suffix.
func Write(dir string, rep *harness.Report, compress bool) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create results dir: %w", err)
	}

	f, path, err := createUnique(dir, rep.CreatedAt.Local(), compress)
	if err != nil {
		return "", err
	}

	if err := encode(f, rep, compress); err != nil {
		f.Close()
		os.Remove(path)

		return "", fmt.Errorf("write report %s: %w", path, err)
	}

	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close report %s: %w", path, err)
	}

	return path, nil
}

func createUnique(dir string, t time.Time, compress bool) (*os.File, string, error) {
	for seq := range maxCollisions {
		path := filepath.Join(dir, fileName(t, seq, compress))

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("create report: %w", err)
		}

		return f, path, nil
	}

	return nil, "", fmt.Errorf("create report: %d reports already exist for %s",
		maxCollisions, t.Format(fileTimeLayout))
}

func encode(w io.Writer, rep *harness.Report, compress bool) error {
	if !compress {
		return GenerateJSON(w, rep)
	}

	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return err
	}

	if err := GenerateJSON(enc, rep); err != nil {
		enc.Close()

		return err
	}

	return enc.Close()
}

// Load reads a report written by Write. Files ending in .zst are
// decompressed.
func Load(path string) (*harness.Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open report: %w", err)
	}
	defer f.Close()

	var r io.Reader = f

	if strings.HasSuffix(path, zstdExt) {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open report %s: %w", path, err)
		}
		defer dec.Close()

		r = dec
	}

	var rep harness.Report
	if err := json.NewDecoder(r).Decode(&rep); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", path, err)
	}

	return &rep, nil
}

// Latest returns the most recent report file in dir.
func Latest(dir string) (string, error) {
	var matches []string

	for _, pattern := range []string{"benchmark_*.json", "benchmark_*.json" + zstdExt} {
		m, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return "", err
		}

		matches = append(matches, m...)
	}

	if len(matches) == 0 {
		return "", fmt.Errorf("no reports in %s: %w", dir, os.ErrNotExist)
	}

	latest := matches[0]
	for _, m := range matches[1:] {
		if reportOrder(m).after(reportOrder(latest)) {
			latest = m
		}
	}

	return latest, nil
}

type order struct {
	stamp string
	seq   int
}

func (o order) after(other order) bool {
	if o.stamp != other.stamp {
		return o.stamp > other.stamp
	}

	return o.seq > other.seq
}

// reportOrder extracts the timestamp and collision suffix of a report
// file name.
func reportOrder(path string) order {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, zstdExt)
	name = strings.TrimSuffix(name, ".json")
	name = strings.TrimPrefix(name, "benchmark_")

	var o order

	if len(name) > len(fileTimeLayout) && name[len(fileTimeLayout)] == '_' {
		o.seq, _ = strconv.Atoi(name[len(fileTimeLayout)+1:])
		name = name[:len(fileTimeLayout)]
	}

	o.stamp = name

	return o
}
