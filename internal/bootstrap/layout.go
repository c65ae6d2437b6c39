package bootstrap

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Files inside an installed runtime tree.
const (
	MarkerFile        = "lib/PYTHIA_VERSION"
	BaseDepsStamp     = ".base-deps"
	DefaultValuesFile = "DEFAULT_VALUES"
)

// Layout locates the build and cache directories.
type Layout struct {
	BuildDir string
	CacheDir string
	Windows  bool
}

// Python returns the interpreter path inside tree.
func (l Layout) Python(tree string) string {
	if l.Windows {
		return filepath.Join(tree, "lib", "python.exe")
	}
	return filepath.Join(tree, "bin", "python")
}

// BuildPython is the installed interpreter.
func (l Layout) BuildPython() string { return l.Python(l.BuildDir) }

// CacheTree is the unpacked cache entry for a.
func (l Layout) CacheTree(a Artifact) string { return filepath.Join(l.CacheDir, a.Name()) }

// CacheArchive is where the downloaded archive for a is kept while unpacking.
func (l Layout) CacheArchive(a Artifact) string {
	return filepath.Join(l.CacheDir, a.Name()+ArchiveExt)
}

// ReadMarker returns the runtime version recorded in tree, the part of the
// marker before the first "-". A missing marker returns "" and no error.
func ReadMarker(tree string) (string, error) {
	data, err := os.ReadFile(filepath.Join(tree, filepath.FromSlash(MarkerFile)))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read version marker: %w", err)
	}
	raw := strings.TrimSpace(string(data))
	version, _, _ := strings.Cut(raw, "-")
	return version, nil
}

// WriteDefaultValues records the resolved runtime, OS and arch for shell
// callers, as "{runtime} {os} {arch}".
func WriteDefaultValues(buildDir string, a Artifact) error {
	if err := os.MkdirAll(buildDir, 0o755); err != nil {
		return err
	}
	line := fmt.Sprintf("%s %s %s\n", a.Runtime, a.Platform.OS, a.Platform.Arch)
	return os.WriteFile(filepath.Join(buildDir, DefaultValuesFile), []byte(line), 0o644)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// copyTree copies src into dst, keeping modes and symlinks.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm()|0o700)
		case info.Mode()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			_ = os.Remove(target)
			return os.Symlink(link, target)
		case info.Mode().IsRegular():
			return copyFile(path, target, info.Mode().Perm())
		default:
			return nil
		}
	})
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
