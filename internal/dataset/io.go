package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/leapstack-labs/creditscope/internal/sector"
)

// Write stores every document of ds under dir. Files are replaced
// atomically so readers never see a partial document.
func Write(dir string, ds *Dataset) error {
	if err := os.MkdirAll(filepath.Join(dir, ByYearDir), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	docs := map[string]any{
		MasterFile:   ds.Master,
		ManifestFile: ds.Manifest,
		TaxonomyFile: ds.Taxonomy,
	}
	for name, gf := range ds.Groups {
		docs[name] = gf
	}
	for _, src := range ds.Sources {
		docs[filepath.Join(ByYearDir, SourceFileName(src.BudgetYear, src.Table))] = src
	}

	names := make([]string, 0, len(docs))
	for n := range docs {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if err := writeJSON(filepath.Join(dir, n), docs[n]); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// Load reads a dataset back from dir. The by_year files are not loaded.
// A missing group file loads as empty; a missing master is an error.
func Load(dir string) (*Dataset, error) {
	ds := &Dataset{Groups: make(map[string]*GroupFile, len(Groups))}
	if err := readJSON(filepath.Join(dir, MasterFile), &ds.Master); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(dir, ManifestFile), &ds.Manifest); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	var tax sector.Taxonomy
	if err := readJSON(filepath.Join(dir, TaxonomyFile), &tax); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	ds.Taxonomy = tax
	for _, g := range Groups {
		gf := &GroupFile{Programs: map[string]*GroupEntry{}}
		if err := readJSON(filepath.Join(dir, g.File), gf); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		ds.Groups[g.File] = gf
	}
	return ds, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Programs returns master entries in ID order.
func (ds *Dataset) Programs() []MasterEntry {
	out := make([]MasterEntry, 0, len(ds.Master))
	for _, m := range ds.Master {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].ProgramID, out[j].ProgramID
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		return a < b
	})
	return out
}

func sortedInts(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}
