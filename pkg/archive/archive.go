// Package archive lists and reads the image entries of comic archives.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nwaples/rardecode/v2"
)

var (
	// ErrNotFound is returned when the archive file or a named entry is missing.
	ErrNotFound = errors.New("archive: not found")
	// ErrCorruptArchive is returned when the container cannot be decoded.
	ErrCorruptArchive = errors.New("archive: corrupt archive")
	// ErrUnsupported is returned for extensions without a reader.
	ErrUnsupported = errors.New("archive: unsupported format")
	// ErrNoImages is returned when a readable archive holds no image entries.
	ErrNoImages = errors.New("archive: no images")
)

// Extensions maps every recognised archive extension to its format.
var Extensions = map[string]Format{
	".zip": FormatZip,
	".cbz": FormatZip,
	".rar": FormatRar,
	".cbr": FormatRar,
}

var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".webp": {},
	".bmp":  {},
}

type Format int

const (
	FormatUnknown Format = iota
	FormatZip
	FormatRar
)

// FormatOf returns the format implied by the extension of name.
func FormatOf(name string) Format {
	return Extensions[strings.ToLower(filepath.Ext(name))]
}

// IsArchive reports whether name has a recognised archive extension.
func IsArchive(name string) bool {
	return FormatOf(name) != FormatUnknown
}

// IsImage reports whether an entry name has an image extension.
func IsImage(name string) bool {
	_, ok := imageExtensions[strings.ToLower(path.Ext(name))]
	return ok
}

// ListImages returns the image entry names of an archive in lexicographic order.
func ListImages(archivePath string) ([]string, error) {
	var names []string
	err := walk(archivePath, func(name string, _ func() (io.Reader, error)) (bool, error) {
		names = append(names, name)
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// FirstImage returns the name and bytes of the lexicographically first image.
func FirstImage(archivePath string) (string, []byte, error) {
	names, err := ListImages(archivePath)
	if err != nil {
		return "", nil, err
	}
	if len(names) == 0 {
		return "", nil, fmt.Errorf("%s: %w", archivePath, ErrNoImages)
	}
	data, err := ReadEntry(archivePath, names[0])
	if err != nil {
		return "", nil, err
	}
	return names[0], data, nil
}

// ReadEntry returns the bytes of the named image entry.
func ReadEntry(archivePath, entry string) ([]byte, error) {
	var data []byte
	found := false
	err := walk(archivePath, func(name string, open func() (io.Reader, error)) (bool, error) {
		if name != entry {
			return false, nil
		}
		r, err := open()
		if err != nil {
			return true, err
		}
		data, err = io.ReadAll(r)
		if err != nil {
			return true, fmt.Errorf("%w: %v", ErrCorruptArchive, err)
		}
		found = true
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("entry %q in %s: %w", entry, archivePath, ErrNotFound)
	}
	return data, nil
}

// visitFunc receives each image entry. Returning true stops the walk.
type visitFunc func(name string, open func() (io.Reader, error)) (bool, error)

func walk(archivePath string, visit visitFunc) error {
	format := FormatOf(archivePath)
	if format == FormatUnknown {
		return fmt.Errorf("%s: %w", archivePath, ErrUnsupported)
	}
	if _, err := os.Stat(archivePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", archivePath, ErrNotFound)
		}
		return fmt.Errorf("%s: %w: %v", archivePath, ErrCorruptArchive, err)
	}

	switch format {
	case FormatZip:
		return walkZip(archivePath, visit)
	default:
		return walkRar(archivePath, visit)
	}
}

func walkZip(archivePath string, visit visitFunc) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("%s: %w: %v", archivePath, ErrCorruptArchive, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !eligible(f.Name) {
			continue
		}
		var rc io.ReadCloser
		open := func() (io.Reader, error) {
			r, err := f.Open()
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrCorruptArchive, err)
			}
			rc = r
			return r, nil
		}
		stop, err := visit(f.Name, open)
		if rc != nil {
			rc.Close()
		}
		if err != nil || stop {
			return err
		}
	}
	return nil
}

func walkRar(archivePath string, visit visitFunc) error {
	rr, err := rardecode.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("%s: %w: %v", archivePath, ErrCorruptArchive, err)
	}
	defer rr.Close()

	for {
		hdr, err := rr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w: %v", archivePath, ErrCorruptArchive, err)
		}
		name := filepath.ToSlash(hdr.Name)
		if hdr.IsDir || !eligible(name) {
			continue
		}
		stop, err := visit(name, func() (io.Reader, error) { return rr, nil })
		if err != nil || stop {
			return err
		}
	}
}

func eligible(name string) bool {
	if strings.HasPrefix(name, "__MACOSX/") || strings.HasPrefix(path.Base(name), "._") {
		return false
	}
	return IsImage(name)
}
