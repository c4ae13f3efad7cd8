//go:build windows

package fshash

import "strings"

// isNetworkFilesystem gives a best-effort answer on Windows by checking for
// a UNC path prefix. Detecting DRIVE_REMOTE for a mapped drive letter needs
// GetDriveTypeW, which would pull in a syscall dependency this module
// otherwise has no use for; UNC is the common case build trees hit.
func isNetworkFilesystem(path string) (bool, error) {
	return strings.HasPrefix(path, `\\`), nil
}
