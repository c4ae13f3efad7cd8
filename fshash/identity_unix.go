//go:build !windows

package fshash

import (
	"os"
	"syscall"
)

// fsIdentity identifies a concrete filesystem entry independent of its path
// string. HashDir compares it against a cached directory entry's identity
// so a directory removed and recreated at the same path is not served the
// old digest.
type fsIdentity struct {
	dev uint64
	ino uint64
}

// identityOf reads (dev, ino) via the underlying stat_t. ok is false if the
// platform doesn't expose a Stat_t we recognize, in which case identity
// checks are skipped rather than treated as a hard error.
func identityOf(info os.FileInfo) (fsIdentity, bool) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return fsIdentity{}, false
	}
	return fsIdentity{dev: uint64(st.Dev), ino: st.Ino}, true
}
