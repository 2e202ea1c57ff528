package hash

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/goopsie/glacierFileTools/pkg/archive"
)

// LoadStats summarizes a hash list load.
type LoadStats struct {
	Loaded    int // pairs recorded
	Unnamed   int // ids listed without a path
	Malformed int // lines that could not be parsed
}

const maxLineSize = 1 << 20

// Load reads a text hash list into the resolver.
//
// Each non-empty line is a comment ("#..."), an "ID[.TYPE],path" pair, or a
// bare path whose id is computed. Lines that cannot be parsed are counted
// in the returned stats and skipped.
func (r *Resolver) Load(src io.Reader) (LoadStats, error) {
	var stats LoadStats

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	r.mu.Lock()
	defer r.mu.Unlock()

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}

		idPart, path, found := strings.Cut(line, ",")
		if !found {
			r.table.put(Compute(line), line)
			stats.Loaded++
			continue
		}

		id, err := ParseID(strings.TrimSpace(idPart))
		if err != nil {
			stats.Malformed++
			continue
		}
		path = strings.TrimSpace(path)
		if path == "" {
			stats.Unnamed++
			continue
		}
		r.table.put(id, path)
		stats.Loaded++
	}

	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("scan hash list: %w", err)
	}
	return stats, nil
}

// LoadFile reads a hash list from disk. Plain text, gzip-compressed text and
// zstd snapshots written by WriteSnapshot are detected by their leading bytes.
func LoadFile(path string) (*Resolver, LoadStats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, LoadStats{}, fmt.Errorf("read hash list: %w", err)
	}

	var src io.Reader = bytes.NewReader(data)
	switch {
	case bytes.HasPrefix(data, archive.Magic[:]):
		content, err := archive.ReadAll(src)
		if err != nil {
			return nil, LoadStats{}, fmt.Errorf("read snapshot: %w", err)
		}
		src = bytes.NewReader(content)
	case bytes.HasPrefix(data, []byte{0x1f, 0x8b}):
		zr, err := gzip.NewReader(src)
		if err != nil {
			return nil, LoadStats{}, fmt.Errorf("open gzip: %w", err)
		}
		defer zr.Close()
		src = zr
	}

	r := NewResolver()
	stats, err := r.Load(src)
	if err != nil {
		return nil, stats, err
	}
	return r, stats, nil
}

// WriteList writes every pair as "ID,path" lines in ascending id order.
func (r *Resolver) WriteList(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, id := range r.IDs() {
		path, _ := r.Resolve(id)
		if _, err := fmt.Fprintf(bw, "%s,%s\n", id, path); err != nil {
			return fmt.Errorf("write hash list: %w", err)
		}
	}
	return bw.Flush()
}

// WriteSnapshot writes the list as a compressed snapshot readable by LoadFile.
func (r *Resolver) WriteSnapshot(w io.WriteSeeker) error {
	aw, err := archive.NewWriter(w)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	if err := r.WriteList(aw); err != nil {
		return err
	}
	if err := aw.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	return nil
}
