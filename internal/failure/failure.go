// Package failure defines the fatal error classes of a bootstrap run and the
// process exit code attached to each of them.
//
// Exit codes are stable and may be relied upon by calling scripts:
//
//	1   generic failure or bad usage
//	3   artifact archive could not be unpacked (cached copy purged)
//	4   artifact not found on the remote (existence probe failed)
//	5   install retry ceiling exceeded
//	6   base dependency install failed
//	7   configuration error
//	9   artifact download failed after retries
//	12  malformed version string
//	13  OS version older than the supported minimum
//	14  unsupported operating system
//	17  unsupported architecture
//	18  libc detection tool missing
//	19  unsupported libc family
//	22  libc version older than the supported minimum
package failure

import (
	"errors"
	"fmt"
	"strings"
)

// Code is a process exit status.
type Code int

const (
	Generic          Code = 1
	UnpackFailed     Code = 3
	ArtifactNotFound Code = 4
	RecursionLimit   Code = 5
	BaseDepsFailed   Code = 6
	Config           Code = 7
	FetchFailed      Code = 9
	MalformedVersion Code = 12
	OSTooOld         Code = 13
	UnsupportedOS    Code = 14
	UnsupportedArch  Code = 17
	LibcToolMissing  Code = 18
	UnsupportedLibc  Code = 19
	LibcTooOld       Code = 22
)

var codeNames = map[Code]string{
	Generic:          "failure",
	UnpackFailed:     "unpack failed",
	ArtifactNotFound: "artifact not found",
	RecursionLimit:   "install retry limit exceeded",
	BaseDepsFailed:   "base dependencies failed",
	Config:           "configuration error",
	FetchFailed:      "download failed",
	MalformedVersion: "malformed version",
	OSTooOld:         "OS version too old",
	UnsupportedOS:    "unsupported operating system",
	UnsupportedArch:  "unsupported architecture",
	LibcToolMissing:  "libc detection tool missing",
	UnsupportedLibc:  "unsupported libc",
	LibcTooOld:       "libc version too old",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code %d", int(c))
}

// Error is a fatal condition. Detected and Required carry the values shown to
// the user, e.g. the detected OS version and the minimum supported one.
type Error struct {
	Code     Code
	Msg      string
	Detected string
	Required string
	Err      error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(e.Code.String())
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Detected != "" {
		fmt.Fprintf(&b, " (detected %s", e.Detected)
		if e.Required != "" {
			fmt.Fprintf(&b, ", required %s", e.Required)
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a fatal error of the given class.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a class to an underlying error.
func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Below reports a detected value that does not meet a required minimum.
func Below(code Code, what, detected, required string) *Error {
	return &Error{
		Code:     code,
		Msg:      what + " is older than the supported minimum",
		Detected: detected,
		Required: required,
	}
}

// CodeOf returns the exit code carried by err, 0 for nil and Generic for
// errors that are not classified.
func CodeOf(err error) Code {
	if err == nil {
		return 0
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return Generic
}

// Is reports whether err carries the given class.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
