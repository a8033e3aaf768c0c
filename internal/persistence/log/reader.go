package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"

	"parkcraft.ai/internal/sim/dispatch"
)

const (
	replayPrefix = "replay"
	rejectPrefix = "rejects"
)

func ReplayDir(parkDir string) string { return filepath.Join(parkDir, "replay") }

// Files lists prefix-*.jsonl.zst under dir. Hourly names sort in time order.
func Files(dir, prefix string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, prefix+"-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// ReadJSONL decodes every line of a .jsonl.zst file into a fresh T and hands
// it to fn. Reading stops at the first error fn returns.
func ReadJSONL[T any](path string, fn func(T) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var v T
		if err := json.Unmarshal(sc.Bytes(), &v); err != nil {
			return fmt.Errorf("%s:%d: %w", filepath.Base(path), line, err)
		}
		if err := fn(v); err != nil {
			return err
		}
	}
	return sc.Err()
}

// ReadReplay loads every replay entry recorded under parkDir in file order.
// Seqs must strictly increase across files. Gaps are normal since ghost and
// unlogged actions never reach the log.
func ReadReplay(parkDir string) ([]dispatch.ReplayEntry, error) {
	paths, err := Files(ReplayDir(parkDir), replayPrefix)
	if err != nil {
		return nil, err
	}
	var out []dispatch.ReplayEntry
	for _, p := range paths {
		err := ReadJSONL(p, func(e dispatch.ReplayEntry) error {
			if n := len(out); n > 0 && e.Seq <= out[n-1].Seq {
				return fmt.Errorf("%s: seq %d after %d", filepath.Base(p), e.Seq, out[n-1].Seq)
			}
			out = append(out, e)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func ReadRejects(parkDir string) ([]RejectEntry, error) {
	paths, err := Files(filepath.Join(parkDir, "rejects"), rejectPrefix)
	if err != nil {
		return nil, err
	}
	var out []RejectEntry
	for _, p := range paths {
		if err := ReadJSONL(p, func(e RejectEntry) error {
			out = append(out, e)
			return nil
		}); err != nil {
			return nil, err
		}
	}
	return out, nil
}
