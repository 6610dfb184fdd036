//go:build !linux && !darwin && !freebsd && !openbsd && !windows

package system

// FreeSpace is not available on this platform.
func FreeSpace(string) (uint64, error) {
	return 0, ErrUnsupported
}
