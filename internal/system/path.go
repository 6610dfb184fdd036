package system

import "path/filepath"

func parentDir(path string) string {
	return filepath.Dir(filepath.Clean(path))
}
