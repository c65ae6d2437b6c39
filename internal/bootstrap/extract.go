package bootstrap

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// ExtractTarGz unpacks archivePath into destDir. Every entry must live under
// the top level directory root; anything else, including paths escaping
// destDir, fails the extraction.
func ExtractTarGz(archivePath, destDir, root string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer file.Close()

	gzr, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	found := false
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("tar read error: %w", err)
		}

		name := path.Clean(strings.TrimPrefix(header.Name, "./"))
		if name == "." {
			continue
		}
		if path.IsAbs(name) || name == ".." || strings.HasPrefix(name, "../") {
			return fmt.Errorf("archive entry %q escapes the destination", header.Name)
		}
		if name != root && !strings.HasPrefix(name, root+"/") {
			return fmt.Errorf("archive entry %q is outside %s/", header.Name, root)
		}
		found = true
		target := filepath.Join(destDir, filepath.FromSlash(name))

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, header.FileInfo().Mode().Perm()|0o700); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := writeEntry(tr, target, header.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := checkLink(root, name, header.Linkname); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			_ = os.Remove(target)
			if err := os.Symlink(header.Linkname, target); err != nil {
				return fmt.Errorf("failed to create symlink %s: %w", target, err)
			}
		case tar.TypeLink:
			linkName := path.Clean(header.Linkname)
			if linkName != root && !strings.HasPrefix(linkName, root+"/") {
				return fmt.Errorf("hard link %q points outside %s/", header.Name, root)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			_ = os.Remove(target)
			if err := os.Link(filepath.Join(destDir, filepath.FromSlash(linkName)), target); err != nil {
				return fmt.Errorf("failed to create hard link %s: %w", target, err)
			}
		}
	}

	if !found {
		return fmt.Errorf("archive %s is empty", archivePath)
	}
	return nil
}

func writeEntry(r io.Reader, target string, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", target, err)
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", target, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy content: %w", err)
	}
	return out.Close()
}

// checkLink rejects symlinks whose target resolves outside root.
func checkLink(root, name, link string) error {
	if path.IsAbs(link) {
		return fmt.Errorf("symlink %q has an absolute target %q", name, link)
	}
	resolved := path.Join(path.Dir(name), link)
	if resolved != root && !strings.HasPrefix(resolved, root+"/") {
		return fmt.Errorf("symlink %q points outside %s/: %q", name, root, link)
	}
	return nil
}
