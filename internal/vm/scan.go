package vm

import (
	"io/fs"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/javanstorm/qemumgr/internal/distro"
)

// FindFiles walks roots recursively and returns the files whose base name
// matches any of patterns, in walk order. Missing roots and unreadable
// directories are skipped.
func FindFiles(roots []string, patterns ...string) []string {
	var found []string
	seen := make(map[string]bool)

	for _, root := range roots {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			for _, p := range patterns {
				if ok, _ := filepath.Match(p, d.Name()); ok && !seen[path] {
					seen[path] = true
					found = append(found, path)
					break
				}
			}
			return nil
		})
	}
	return found
}

// ScanForImages synthesizes a spec for every qcow2 image under roots. Names
// and OS hints come from the file stem; a name seen twice gets a numeric
// suffix.
func ScanForImages(roots []string, d Defaults) []VMSpec {
	var specs []VMSpec
	taken := make(map[string]bool)

	for _, path := range FindFiles(roots, "*.qcow2") {
		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		base := SanitizeName(stem)
		if base == "" {
			base = "vm"
		}

		name := base
		for i := 2; taken[name]; i++ {
			suffix := "-" + strconv.Itoa(i)
			name = base
			if len(name)+len(suffix) > MaxNameLength {
				name = name[:MaxNameLength-len(suffix)]
			}
			name += suffix
		}
		taken[name] = true

		spec := NewSpec(name, d)
		spec.DiskPath = path
		spec.OSHint = string(distro.Hint(stem))
		spec.AutoDetected = true
		specs = append(specs, spec)
	}
	return specs
}

// NewImports filters scanned specs down to those whose name and disk are
// both unknown to existing.
func NewImports(scanned, existing []VMSpec) []VMSpec {
	var out []VMSpec
	for _, s := range scanned {
		dup := slices.ContainsFunc(existing, func(e VMSpec) bool {
			return e.Name == s.Name || (e.DiskPath != "" && e.DiskPath == s.DiskPath)
		})
		if !dup {
			out = append(out, s)
		}
	}
	return out
}
