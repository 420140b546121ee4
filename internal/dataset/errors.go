package dataset

import "errors"

// Sentinel errors returned by Build and the record sources.
// Use errors.Is to check for them.
var (
	// ErrInvalidPath indicates the dataset root is missing, is not a directory,
	// or holds no class subdirectories with images.
	ErrInvalidPath = errors.New("dataset: invalid path")

	// ErrInvalidParameter indicates a batch size, repeat count or sharding
	// plan outside its valid range.
	ErrInvalidParameter = errors.New("dataset: invalid parameter")
)
