//go:build !windows

package writer

import (
	"fmt"
	"syscall"
)

// checkDiskSpaceImpl fails when less than 10% of the filesystem holding
// path is free.
func checkDiskSpaceImpl(path string) error {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return fmt.Errorf("statfs %s: %w", path, err)
	}
	if stat.Blocks == 0 {
		return fmt.Errorf("statfs %s: zero total blocks", path)
	}

	freePct := float64(stat.Bavail) / float64(stat.Blocks) * 100
	if freePct < 10.0 {
		return fmt.Errorf("insufficient disk space on %s: %.1f%% free (minimum 10%%)", path, freePct)
	}
	return nil
}
