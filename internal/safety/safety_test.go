package safety

import (
	"fmt"
	"os"
	"syscall"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestIsStaleMountErrorDetectsENOTCONN(t *testing.T) {
	err := &os.PathError{Op: "write", Path: "/archive/x", Err: syscall.Errno(unix.ENOTCONN)}
	if !IsStaleMountError(err) {
		t.Fatalf("expected ENOTCONN wrapped in PathError to be recognized as stale mount")
	}
}

func TestIsStaleMountErrorDetectsSyscallError(t *testing.T) {
	err := os.NewSyscallError("statfs", syscall.Errno(unix.ESTALE))
	if !IsStaleMountError(err) {
		t.Fatalf("expected ESTALE wrapped in SyscallError to be recognized as stale mount")
	}
}

func TestIsStaleMountErrorRejectsUnrelatedErrno(t *testing.T) {
	err := &os.PathError{Op: "open", Path: "/archive/x", Err: syscall.Errno(unix.ENOENT)}
	if IsStaleMountError(err) {
		t.Fatalf("did not expect ENOENT to be classified as stale mount")
	}
}

func TestIsStaleMountErrorRejectsNonErrno(t *testing.T) {
	if IsStaleMountError(fmt.Errorf("some ordinary failure")) {
		t.Fatalf("did not expect a plain error to be classified as stale mount")
	}
	if IsStaleMountError(nil) {
		t.Fatalf("did not expect nil to be classified as stale mount")
	}
}

func TestClassifyIOErrorWrapsStaleMountAsStorageUnavailable(t *testing.T) {
	err := &os.PathError{Op: "read", Path: "/archive/x", Err: syscall.Errno(unix.ENOTCONN)}
	classified := ClassifyIOError(err)
	if classified == nil {
		t.Fatalf("expected non-nil classified error")
	}
	if classified.Error() == err.Error() {
		t.Fatalf("expected classification to rewrap the error, got unchanged error")
	}
}

func TestClassifyIOErrorLeavesOtherErrorsUntouched(t *testing.T) {
	orig := fmt.Errorf("permission denied")
	if got := ClassifyIOError(orig); got != orig {
		t.Fatalf("expected non-stale-mount error to pass through unchanged")
	}
}

func TestCooldownElapsedNilMeansEligible(t *testing.T) {
	if !CooldownElapsed(nil, 10*time.Minute, time.Now()) {
		t.Fatalf("expected nil last-infra-error time to mean immediately eligible")
	}
}

func TestCooldownElapsedRespectsWindow(t *testing.T) {
	now := time.Now()
	recent := now.Add(-1 * time.Minute)
	if CooldownElapsed(&recent, 10*time.Minute, now) {
		t.Fatalf("expected cooldown not yet elapsed")
	}

	old := now.Add(-11 * time.Minute)
	if !CooldownElapsed(&old, 10*time.Minute, now) {
		t.Fatalf("expected cooldown to have elapsed")
	}
}

func TestHasHeadroomOnRealFilesystem(t *testing.T) {
	ok, err := HasHeadroom(t.TempDir(), 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected headroom check against a 100%% threshold to always pass")
	}
}
