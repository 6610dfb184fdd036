// Package system reports host characteristics relevant to a sync: free
// disk space under the content root and a short host description for run records.
package system

import (
	"errors"
	"os"
	"os/exec"
	"runtime"
	"strings"

	apperrors "assetsync/internal/errors"
)

// ErrUnsupported is returned by FreeSpace on platforms without a statfs equivalent.
var ErrUnsupported = errors.New("free space query not supported on this platform")

// Info describes the host a run executes on.
type Info struct {
	OS           string `json:"os"`
	Architecture string `json:"architecture"`
	Hostname     string `json:"hostname"`
	VirtType     string `json:"virt_type"`
}

// Detect gathers Info. It never fails; unknown values are left empty.
func Detect() Info {
	host, _ := os.Hostname()
	return Info{
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
		Hostname:     host,
		VirtType:     detectVirtualization(),
	}
}

func detectVirtualization() string {
	if runtime.GOOS != "linux" {
		return ""
	}
	output, err := exec.Command("systemd-detect-virt").Output()
	if err != nil {
		return "physical"
	}

	switch virt := strings.TrimSpace(string(output)); virt {
	case "openvz", "lxc", "lxc-libvirt", "systemd-nspawn", "docker", "podman", "proot", "pouch":
		return "container"
	case "none", "":
		return "physical"
	default:
		return "vm"
	}
}

// EnsureFreeSpace fails with IO-002 when path has less than required bytes free.
// Platforms without a free-space query pass.
func EnsureFreeSpace(path string, required int64) error {
	if required <= 0 {
		return nil
	}
	free, err := FreeSpace(path)
	if errors.Is(err, ErrUnsupported) {
		return nil
	}
	if err != nil {
		return apperrors.IOError(apperrors.CodeIOGeneric, "failed to get disk space information", err).
			WithModule("system").WithOperation("EnsureFreeSpace").WithField("path", path)
	}
	if free < uint64(required) {
		return apperrors.IOError(apperrors.CodeIOInsufficientSpace, "insufficient disk space", nil).
			WithModule("system").
			WithOperation("EnsureFreeSpace").
			WithFields(apperrors.Metadata{
				"path":            path,
				"required_bytes":  required,
				"available_bytes": free,
			})
	}
	return nil
}

// existingAncestor returns path or its nearest existing parent, so free space
// can be queried before the content root is created.
func existingAncestor(path string) string {
	for {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := parentDir(path)
		if parent == path {
			return path
		}
		path = parent
	}
}
