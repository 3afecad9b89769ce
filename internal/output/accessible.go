package output

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
)

// WriteAccessible writes hosts to path, one per line. The file is replaced
// atomically so a reader never sees a partial list.
func WriteAccessible(path string, hosts []string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating accessible export: %w", err)
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)
	for _, h := range hosts {
		bw.WriteString(h)
		bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("writing accessible export: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("writing accessible export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing accessible export: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
