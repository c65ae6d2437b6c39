//go:build !unix && !windows

package platform

import "runtime"

func uname() (Uname, error) {
	return Uname{Sysname: runtime.GOOS, Machine: runtime.GOARCH}, nil
}
