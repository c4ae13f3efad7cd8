//go:build darwin

package fshash

import "syscall"

var networkFsTypeNames = map[string]bool{
	"nfs":    true,
	"smbfs":  true,
	"afpfs":  true,
	"webdav": true,
	"cifs":   true,
}

func isNetworkFilesystem(path string) (bool, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return false, err
	}
	name := make([]byte, 0, len(st.Fstypename))
	for _, b := range st.Fstypename {
		if b == 0 {
			break
		}
		name = append(name, byte(b))
	}
	return networkFsTypeNames[string(name)], nil
}
