package protocol

import (
	"errors"
	"io"
	"io/fs"
	"net"
	"os"
	"syscall"
)

// ClassifyErr maps a Go error onto the stable wire error taxonomy of spec
// §7. Kind categorization is stable; only the human-readable description
// alongside it is informational.
func ClassifyErr(err error) ErrorKind {
	if err == nil {
		return ErrOther
	}

	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ErrNotFound
	case errors.Is(err, fs.ErrPermission):
		return ErrPermissionDenied
	case errors.Is(err, fs.ErrExist):
		return ErrAlreadyExists
	case errors.Is(err, io.EOF):
		return ErrUnexpectedEOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		return ErrUnexpectedEOF
	case errors.Is(err, io.ErrClosedPipe):
		return ErrBrokenPipe
	case errors.Is(err, io.ErrShortWrite):
		return ErrWriteZero
	case errors.Is(err, os.ErrDeadlineExceeded):
		return ErrTimedOut
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ENOENT:
			return ErrNotFound
		case syscall.EACCES, syscall.EPERM:
			return ErrPermissionDenied
		case syscall.ECONNREFUSED:
			return ErrConnectionRefused
		case syscall.ECONNRESET:
			return ErrConnectionReset
		case syscall.ECONNABORTED:
			return ErrConnectionAborted
		case syscall.ENOTCONN:
			return ErrNotConnected
		case syscall.EADDRINUSE:
			return ErrAddrInUse
		case syscall.EADDRNOTAVAIL:
			return ErrAddrNotAvailable
		case syscall.EPIPE:
			return ErrBrokenPipe
		case syscall.EEXIST:
			return ErrAlreadyExists
		case syscall.EAGAIN:
			return ErrWouldBlock
		case syscall.EINVAL:
			return ErrInvalidInput
		case syscall.EINTR:
			return ErrInterrupted
		case syscall.ENOTSUP:
			return ErrUnsupported
		case syscall.ENOMEM:
			return ErrOutOfMemory
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimedOut
	}

	return ErrOther
}

// ToError turns any Go error into the wire Error response payload.
func ToError(err error) Error {
	return Error{ErrKind: ClassifyErr(err), Description: err.Error()}
}
