package automation

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrNoModel is returned when a model pattern matches no file.
var ErrNoModel = errors.New("no model snapshot found")

// ResolveModelPaths expands a model path or ** glob into the matching
// snapshot files, sorted. A plain path that exists is returned as is.
func ResolveModelPaths(pattern string) ([]string, error) {
	if pattern == "" {
		return nil, fmt.Errorf("%w: empty pattern", ErrNoModel)
	}

	if info, err := os.Stat(pattern); err == nil && !info.IsDir() {
		return []string{pattern}, nil
	}

	if !doublestar.ValidatePathPattern(filepath.ToSlash(pattern)) {
		return nil, fmt.Errorf("invalid model pattern %q", pattern)
	}

	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("expand model pattern %q: %w", pattern, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoModel, pattern)
	}
	sort.Strings(matches)
	return matches, nil
}
