// Package vdoerr defines the sentinel error kinds shared across the VDO
// core. Components wrap these with fmt.Errorf("...: %w", ...) rather than
// inventing ad-hoc error strings, so callers can classify failures with
// errors.Is regardless of which component raised them.
package vdoerr

import "errors"

var (
	ErrOutOfMemory        = errors.New("vdo: out of memory")
	ErrIO                 = errors.New("vdo: io error")
	ErrBadState           = errors.New("vdo: bad state")
	ErrInvalidArgument    = errors.New("vdo: invalid argument")
	ErrReadOnly           = errors.New("vdo: read only")
	ErrCorruptJournal     = errors.New("vdo: corrupt journal")
	ErrNoSpace            = errors.New("vdo: no space")
	ErrVolumeOverflow     = errors.New("vdo: volume overflow")
	ErrLock               = errors.New("vdo: lock error")
	ErrComponentBusy      = errors.New("vdo: component busy")
	ErrInvalidAdminState  = errors.New("vdo: invalid admin state")
	ErrBadConfiguration   = errors.New("vdo: bad configuration")
	ErrNoThreads          = errors.New("vdo: no threads")
	ErrPoolEmpty          = errors.New("vdo: pool empty")
)
