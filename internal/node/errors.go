package node

import "errors"

// Parse/IO error sentinels (spec.md §7 category 1). Each is context-carried
// by %w-wrapping with the LEB, offset, and type at the call site.
var (
	ErrBadMagic      = errors.New("bad magic")
	ErrBadCRC        = errors.New("bad crc")
	ErrBadNodeLength = errors.New("bad node length")
	ErrShortRead     = errors.New("short read")
	ErrWriteFailed   = errors.New("write failed")

	// ErrUnknownType is returned by Parse for a syntactically valid header
	// whose type has no registered decoder.
	ErrUnknownType = errors.New("unknown node type")

	// ErrValidation is wrapped by every per-type Validate failure
	// (mode/size/xattr bounds, name length, key/type agreement, etc.).
	ErrValidation = errors.New("node validation failed")
)
