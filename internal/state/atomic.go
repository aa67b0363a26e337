package state

import (
	"os"
)

// writeFileAtomic writes data to a sibling temp file and renames it over
// the target, so a crash mid-write leaves either the old file or the new
// one — never a truncated mix.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) // best-effort cleanup
		return err
	}
	return nil
}
