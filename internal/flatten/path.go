package flatten

import "os"

// fileExists reports whether path names a regular file, used by
// resolveChildPath to probe each candidate search directory in order.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
