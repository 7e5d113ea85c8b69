package romba

import "errors"

var (
	// ErrInvalidHash is returned when a hash is not valid hex of the expected
	// length. It is raised before any I/O takes place.
	ErrInvalidHash = errors.New("invalid hash")

	// ErrDepotFull is returned when no online depot can accept a write.
	ErrDepotFull = errors.New("no depot with free capacity")

	// ErrNotFound is returned when content is not present in any depot.
	ErrNotFound = errors.New("content not found")

	// ErrCorruptObject is returned when a depot object disagrees with its
	// header or its file name.
	ErrCorruptObject = errors.New("corrupt depot object")
)
