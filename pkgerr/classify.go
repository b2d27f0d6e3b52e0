package pkgerr

import (
	"errors"
	"io/fs"
	"syscall"
)

// FromOS classifies an OS-level error (from the os/syscall packages) into
// one of the storage engine's error kinds, the way the original C source's
// errno_to_ns_error maps errno values onto ns_ret_t. Go doesn't expose a
// single errno type uniformly, so this inspects the common fs/syscall
// sentinels instead. Every case, matched or not, is wrapped with kind IO.
func FromOS(err error, msg string) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, fs.ErrNotExist):
		return Wrap(err, IO, msg)
	case errors.Is(err, fs.ErrPermission):
		return Wrap(err, IO, msg)
	case errors.Is(err, syscall.ENOSPC):
		return Wrap(err, IO, msg)
	case errors.Is(err, syscall.EIO):
		return Wrap(err, IO, msg)
	default:
		return Wrap(err, IO, msg)
	}
}
