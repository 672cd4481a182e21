//go:build darwin

package vault

import (
	"os"
	"syscall"
	"time"
)

// platformCreationTime returns the file birth time on macOS.
func platformCreationTime(fi os.FileInfo) (time.Time, bool) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(st.Birthtimespec.Sec, st.Birthtimespec.Nsec), true
}
