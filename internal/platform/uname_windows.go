//go:build windows

package platform

import "os"

// Windows has no uname; the kernel name is fixed and the architecture comes
// from the environment, like under MSYS.
func uname() (Uname, error) {
	return Uname{
		Sysname: "Windows_NT",
		Machine: os.Getenv("PROCESSOR_ARCHITECTURE"),
	}, nil
}
