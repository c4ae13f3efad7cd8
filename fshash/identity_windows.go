//go:build windows

package fshash

import "os"

// fsIdentity is unavailable on Windows without cgo-free access to
// GetFileInformationByHandle's volume serial number + file index; degrade
// gracefully to watcher-only invalidation per spec §4.1 rather than guess.
type fsIdentity struct{}

func identityOf(info os.FileInfo) (fsIdentity, bool) {
	return fsIdentity{}, false
}
