//go:build linux || darwin

package metrics

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// DiskUsage reports the usage of the filesystem holding path.
func DiskUsage(path string) (Disk, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Disk{}, fmt.Errorf("statfs %s: %w", path, err)
	}
	bsize := uint64(st.Bsize) //nolint:gosec // block size is never negative
	total := st.Blocks * bsize
	free := st.Bavail * bsize
	return newDisk(total, free), nil
}
