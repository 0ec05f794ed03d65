package manifest

import "errors"

var (
	// ErrInvalidLocation indicates the manifest is not inside the trusted directory.
	ErrInvalidLocation = errors.New("manifest outside trusted directory")

	// ErrUnreadablePackage indicates the package header could not be read.
	ErrUnreadablePackage = errors.New("unreadable package")
)
