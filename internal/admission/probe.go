package admission

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Probe reports the total and available bytes of the volume holding path.
type Probe func(path string) (total, free uint64, err error)

// StatfsProbe measures the volume with statfs. Free space is what an
// unprivileged process can still write (Bavail), not the raw free block count.
func StatfsProbe(path string) (uint64, uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	bsize := uint64(stat.Bsize)
	return stat.Blocks * bsize, stat.Bavail * bsize, nil
}
