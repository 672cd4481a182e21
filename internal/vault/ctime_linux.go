//go:build linux

package vault

import (
	"os"
	"syscall"
	"time"
)

// platformCreationTime returns the inode change time on Linux, the
// closest available stand-in for creation time.
func platformCreationTime(fi os.FileInfo) (time.Time, bool) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(st.Ctim.Sec, st.Ctim.Nsec), true
}
