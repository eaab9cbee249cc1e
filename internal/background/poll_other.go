//go:build !unix

package background

import (
	"os"
	"time"
)

func pollReadable(f *os.File, timeout time.Duration) (bool, error) {
	return false, nil
}
