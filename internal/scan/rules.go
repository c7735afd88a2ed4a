package scan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/raoulx24/backup-archiver/internal/logging"
	"github.com/raoulx24/backup-archiver/internal/types"
)

// Rules are exclusion patterns matched case-insensitively against a file's
// base name only, with shell glob syntax.
type Rules struct {
	patterns []string
}

// CompileRules lowercases and checks every pattern.
func CompileRules(patterns []string) (Rules, error) {
	var r Rules
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if _, err := filepath.Match(p, ""); err != nil {
			return Rules{}, fmt.Errorf("%w: exclusion pattern %q: %v", types.ErrConfigurationInvalid, p, err)
		}
		r.patterns = append(r.patterns, p)
	}
	return r, nil
}

// Excluded reports whether the base name of p matches any rule.
func (r Rules) Excluded(p string) bool {
	name := strings.ToLower(filepath.Base(p))
	for _, pat := range r.patterns {
		if ok, _ := filepath.Match(pat, name); ok {
			return true
		}
	}
	return false
}

// Len is the number of active patterns.
func (r Rules) Len() int { return len(r.patterns) }

// ResolveRoots turns configured source paths into absolute, existing
// directories. Invalid entries are dropped with a warning; it is an error
// only when none remain.
func ResolveRoots(paths []string, log logging.Logger) ([]string, error) {
	seen := map[string]bool{}
	var roots []string

	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			log.Warn("scan: invalid source directory", "path", p, "error", err)
			continue
		}
		st, err := os.Stat(abs)
		switch {
		case err != nil:
			log.Warn("scan: invalid source directory", "path", p, "error", err)
			continue
		case !st.IsDir():
			log.Warn("scan: invalid source directory", "path", p, "error", errors.New("not a directory"))
			continue
		}
		if seen[abs] {
			continue
		}
		seen[abs] = true
		roots = append(roots, abs)
	}

	if len(roots) == 0 {
		return nil, fmt.Errorf("%w: no valid source directories configured", types.ErrConfigurationInvalid)
	}
	return roots, nil
}
