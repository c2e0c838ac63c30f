// internal/health/fs.go
package health

import (
	"fmt"
	"os"
	"path/filepath"
)

// countDirEntries counts entries under base/kind. A missing directory counts
// as zero; brand-new environments legitimately have no artifacts yet.
func countDirEntries(base, kind string) (int, error) {
	entries, err := os.ReadDir(filepath.Join(base, kind))
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("health: read %s: %w", filepath.Join(base, kind), err)
	}
	return len(entries), nil
}
