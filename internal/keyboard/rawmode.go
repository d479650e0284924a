//go:build linux

package keyboard

import "golang.org/x/sys/unix"

// EnableRaw puts the terminal at fd into cbreak mode: canonical line
// buffering and local echo off, reads returning after one byte. The
// previous state is returned for Restore.
func EnableRaw(fd int) (*unix.Termios, error) {
	old, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, err
	}

	raw := *old
	raw.Lflag &^= unix.ICANON | unix.ECHO
	raw.Cc[unix.VMIN] = 1
	raw.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &raw); err != nil {
		return nil, err
	}
	return old, nil
}

// Restore puts the terminal at fd back into the state EnableRaw saved.
func Restore(fd int, state *unix.Termios) error {
	return unix.IoctlSetTermios(fd, unix.TCSETS, state)
}
