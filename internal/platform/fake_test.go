package platform

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"
)

// fakeHost answers host queries from canned data.
type fakeHost struct {
	uname   Uname
	files   map[string]string
	outputs map[string]string
	failing map[string]bool
	paths   map[string]bool
	env     map[string]string
	info    OSInfo
	calls   map[string]int
}

func newFakeHost(sysname, machine string) *fakeHost {
	return &fakeHost{
		uname:   Uname{Sysname: sysname, Machine: machine},
		files:   map[string]string{},
		outputs: map[string]string{},
		failing: map[string]bool{},
		paths:   map[string]bool{"ldd": true},
		env:     map[string]string{},
		calls:   map[string]int{},
	}
}

func (f *fakeHost) withOSRelease(content string) *fakeHost {
	f.files[OSReleasePath] = content
	return f
}

func (f *fakeHost) withOutput(cmdline, out string) *fakeHost {
	f.outputs[cmdline] = out
	return f
}

func (f *fakeHost) Uname() (Uname, error) { return f.uname, nil }

func (f *fakeHost) ReadFile(name string) ([]byte, error) {
	data, ok := f.files[name]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return []byte(data), nil
}

func (f *fakeHost) Output(_ context.Context, name string, args ...string) (string, error) {
	cmdline := strings.Join(append([]string{name}, args...), " ")
	f.calls[cmdline]++
	out, ok := f.outputs[cmdline]
	if !ok {
		return "", fmt.Errorf("%s: %w", cmdline, exec.ErrNotFound)
	}
	if f.failing[cmdline] {
		return out, errors.New("exit status 1")
	}
	return out, nil
}

func (f *fakeHost) LookPath(file string) (string, error) {
	if f.paths[file] {
		return "/usr/bin/" + file, nil
	}
	return "", &exec.Error{Name: file, Err: exec.ErrNotFound}
}

func (f *fakeHost) Getenv(key string) string { return f.env[key] }

func (f *fakeHost) Describe(context.Context) (OSInfo, error) { return f.info, nil }

const (
	glibc230 = "ldd (GNU libc) 2.30\nCopyright (C) 2019 Free Software Foundation, Inc."
	glibc235 = "ldd (Ubuntu GLIBC 2.35-0ubuntu3.1) 2.35\nCopyright (C) 2022 Free Software Foundation, Inc."
	glibc210 = "ldd (GNU libc) 2.10\nCopyright (C) 2009 Free Software Foundation, Inc."
	musl124  = "musl libc (x86_64)\nVersion 1.2.4\nDynamic Program Loader\nUsage: ldd [options] [--] pathname"
)
