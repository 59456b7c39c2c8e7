package app

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pmuplace/internal/errors"
)

// DiscoverDatasets lists the .csv and .xlsx files of dir in name order. When
// models is non-empty only files whose name contains one of its entries are
// kept.
func DiscoverDatasets(dir string, models []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list input directory %s", dir)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		switch strings.ToLower(filepath.Ext(name)) {
		case ".csv", ".xlsx":
		default:
			continue
		}
		if strings.HasPrefix(name, "~$") || !matchesModel(name, models) {
			continue
		}
		paths = append(paths, filepath.Join(dir, name))
	}
	sort.Strings(paths)
	return paths, nil
}

func matchesModel(name string, models []string) bool {
	if len(models) == 0 {
		return true
	}
	for _, m := range models {
		if strings.Contains(name, m) {
			return true
		}
	}
	return false
}
