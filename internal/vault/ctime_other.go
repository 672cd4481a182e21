//go:build !linux && !darwin

package vault

import (
	"os"
	"time"
)

func platformCreationTime(_ os.FileInfo) (time.Time, bool) {
	return time.Time{}, false
}
