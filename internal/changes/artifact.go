package changes

import (
	"os"
	"path/filepath"
)

// writeFile writes content to path, creating any missing parent
// directories (diff artifacts live under a per-deployment root that
// may not exist yet on first use).
func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
