// Package safety implements the operational guard rails spec §4.J
// names: recognizing the stale-mount errno signature at I/O
// boundaries, checking disk headroom on the archive filesystem, and
// deciding whether an infra-error job has cleared its cooldown.
package safety

import (
	"errors"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"healtharchive/internal/apperrors"
)

// staleMountErrnos are the errno values a crawl or I/O call can return
// when the archive mount has gone away mid-operation. ENOTCONN is the
// literal "Transport endpoint is not connected" signature spec §4.J
// names; ESTALE and EIO cover the NFS/stale-handle variants seen in
// practice on the same class of mount failure.
var staleMountErrnos = map[syscall.Errno]struct{}{
	unix.ENOTCONN: {},
	unix.ESTALE:   {},
	unix.EIO:      {},
}

// IsStaleMountError reports whether err's root cause is one of the
// stale-mount errno signatures. Callers at every I/O boundary (job
// runner, indexer, HTTP raw-snapshot read) check this before propagating an error
// up, so it can be reclassified as infra rather than a genuine crawl
// or indexing failure.
func IsStaleMountError(err error) bool {
	if err == nil {
		return false
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		_, ok := staleMountErrnos[errno]
		return ok
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return IsStaleMountError(pathErr.Err)
	}
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) {
		return IsStaleMountError(linkErr.Err)
	}
	var syscallErr *os.SyscallError
	if errors.As(err, &syscallErr) {
		return IsStaleMountError(syscallErr.Err)
	}

	return false
}

// ClassifyIOError wraps err for propagation out of an I/O boundary,
// translating a stale-mount signature into apperrors.StorageUnavailable
// and leaving every other error untouched so normal failure handling
// still applies.
func ClassifyIOError(err error) error {
	if err == nil {
		return nil
	}
	if IsStaleMountError(err) {
		return apperrors.StorageUnavailable(err)
	}
	return err
}

// DiskUsage reports the fraction (0..1) of the filesystem containing
// path that is currently used.
func DiskUsage(path string) (float64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, ClassifyIOError(err)
	}
	if stat.Blocks == 0 {
		return 0, nil
	}
	used := stat.Blocks - stat.Bfree
	return float64(used) / float64(stat.Blocks), nil
}

// HasHeadroom reports whether path's filesystem usage is below
// maxUsedPercent (spec §4.D step 1 / §4.J, default 85% used → 15%
// headroom).
func HasHeadroom(path string, maxUsedPercent float64) (bool, error) {
	usage, err := DiskUsage(path)
	if err != nil {
		return false, err
	}
	return usage*100 < maxUsedPercent, nil
}

// CooldownElapsed reports whether an infra_error job is eligible for
// retry again: lastInfraErrorAt is zero (never hit one) or older than
// cooldown relative to now.
func CooldownElapsed(lastInfraErrorAt *time.Time, cooldown time.Duration, now time.Time) bool {
	if lastInfraErrorAt == nil {
		return true
	}
	return now.Sub(*lastInfraErrorAt) >= cooldown
}
