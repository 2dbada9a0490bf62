// Package vfserr defines the sentinel error kinds that the VFS, upload
// pipeline, and user model surface, and that the FTP dispatcher maps to
// reply codes (spec §7).
package vfserr

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrExists             = errors.New("already exists")
	ErrNotADir            = errors.New("not a directory")
	ErrNotAFile           = errors.New("not a file")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrBadSequence        = errors.New("bad sequence")
	ErrDataChannelMissing = errors.New("data channel missing")
	ErrTransferAborted    = errors.New("transfer aborted")
	ErrIOFailure          = errors.New("fs error")
	ErrNoAvailablePort    = errors.New("no available port")
	ErrBusy               = errors.New("server busy")
	ErrAuthFailure        = errors.New("authentication failure")
	ErrQuotaExceeded      = errors.New("quota exceeded")
)

// ReplyCode maps a vfserr sentinel (or a wrapped occurrence of one) to
// the FTP reply code the dispatcher should answer with. Unknown errors
// fall back to 451, matching the "VFS-level exceptions are wrapped into
// a single IOFailure kind at the dispatcher boundary" propagation policy.
func ReplyCode(err error) (code int, message string) {
	switch {
	case errors.Is(err, ErrNotFound):
		return 550, "path does not exist"
	case errors.Is(err, ErrExists):
		return 550, "path already exists"
	case errors.Is(err, ErrNotADir):
		return 550, "path is not a directory"
	case errors.Is(err, ErrNotAFile):
		return 550, "path is not a file"
	case errors.Is(err, ErrPermissionDenied):
		return 550, "permission denied"
	case errors.Is(err, ErrBadSequence):
		return 503, "bad sequence"
	case errors.Is(err, ErrDataChannelMissing):
		return 425, "no data connection"
	case errors.Is(err, ErrTransferAborted):
		return 426, "transfer aborted"
	case errors.Is(err, ErrNoAvailablePort):
		return 421, "no available ports"
	case errors.Is(err, ErrBusy):
		return 421, "server busy"
	case errors.Is(err, ErrAuthFailure):
		return 530, "auth failure"
	case errors.Is(err, ErrQuotaExceeded):
		return 421, "too many connections"
	default:
		return 451, "fs error"
	}
}
