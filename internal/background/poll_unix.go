//go:build unix

package background

import (
	"errors"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// pollReadable waits at most timeout for f to have data or be closed by the
// writer.
func pollReadable(f *os.File, timeout time.Duration) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(f.Fd()), Events: unix.POLLIN}}

	for {
		n, err := unix.Poll(fds, int(timeout.Milliseconds()))
		if errors.Is(err, unix.EINTR) {
			continue
		}

		if err != nil {
			return false, err
		}

		return n > 0 && fds[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0, nil
	}
}
