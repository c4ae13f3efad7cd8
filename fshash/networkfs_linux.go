//go:build linux

package fshash

import "syscall"

// Filesystem magic numbers from linux/magic.h for the network filesystems
// spec §4.1 requires rejecting outright (hashing them is unsafe: mtimes are
// often coarse and caches can observe stale content after other clients write).
const (
	nfsSuperMagic  = 0x6969
	nfs4SuperMagic = 0x6969 // NFSv4 client reports the same magic as NFSv2/3
	smbSuperMagic  = 0x517b
	cifsMagicNum   = 0xff534d42
	afsSuperMagic  = 0x5346414f
	codaSuperMagic = 0x73757245
)

var networkMagics = map[int64]bool{
	nfsSuperMagic:  true,
	smbSuperMagic:  true,
	cifsMagicNum:   true,
	afsSuperMagic:  true,
	codaSuperMagic: true,
}

func isNetworkFilesystem(path string) (bool, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return false, err
	}
	return networkMagics[int64(st.Type)], nil
}
