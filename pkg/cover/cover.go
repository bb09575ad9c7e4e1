// Package cover derives the JPEG cover renditions of a comic and manages
// their files under a covers root.
package cover

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path"
	"path/filepath"
	"strings"

	_ "image/gif"
	_ "image/png"

	"github.com/mwantia/comicshelf/pkg/db/models"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ErrDerivationFailed is returned when an image cannot be decoded, scaled or written.
var ErrDerivationFailed = errors.New("cover: derivation failed")

// WebPrefix is prepended to every recorded cover path.
const WebPrefix = "covers"

const quality = 95

// Size is one cover rendition.
type Size struct {
	Name  string
	Width int
}

var (
	Thumbnail = Size{Name: "thumbnail", Width: 180}
	Medium    = Size{Name: "medium", Width: 360}
	Large     = Size{Name: "large", Width: 540}

	Sizes = []Size{Thumbnail, Medium, Large}
)

// Deriver writes renditions below Root/<size>/<slug>.jpg.
type Deriver struct {
	root string
}

func NewDeriver(root string) *Deriver {
	return &Deriver{root: root}
}

func (d *Deriver) Root() string {
	return d.root
}

// Paths returns the recorded web paths for title.
func (d *Deriver) Paths(title string) models.CoverSet {
	slug := Sanitize(title)
	return models.CoverSet{
		Thumbnail: webPath(Thumbnail, slug),
		Medium:    webPath(Medium, slug),
		Large:     webPath(Large, slug),
	}
}

// Resolve maps a recorded web path onto its file below the covers root.
func (d *Deriver) Resolve(web string) string {
	rel := strings.TrimPrefix(path.Clean("/"+web), "/")
	rel = strings.TrimPrefix(rel, WebPrefix+"/")
	return filepath.Join(d.root, filepath.FromSlash(rel))
}

// Exists reports whether the recorded thumbnail of covers is on disk.
func (d *Deriver) Exists(covers *models.CoverSet) bool {
	if covers == nil || covers.Thumbnail == "" {
		return false
	}
	info, err := os.Stat(d.Resolve(covers.Thumbnail))
	return err == nil && !info.IsDir()
}

// Derive decodes data and writes all three renditions for title. Either every
// rendition is written or none is left behind.
func (d *Deriver) Derive(title string, data []byte) (models.CoverSet, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return models.CoverSet{}, fmt.Errorf("%w: decode %q: %v", ErrDerivationFailed, title, err)
	}
	bounds := src.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return models.CoverSet{}, fmt.Errorf("%w: %q has an empty image", ErrDerivationFailed, title)
	}

	slug := Sanitize(title)
	var written []string
	for _, size := range Sizes {
		target := d.file(size, slug)
		if err := writeRendition(target, src, size.Width); err != nil {
			for _, p := range written {
				os.Remove(p)
			}
			return models.CoverSet{}, fmt.Errorf("%w: %s rendition of %q: %v", ErrDerivationFailed, size.Name, title, err)
		}
		written = append(written, target)
	}
	return d.Paths(title), nil
}

// Rename moves the renditions of oldTitle to the slug of newTitle and returns
// the new paths. Missing renditions are skipped.
func (d *Deriver) Rename(oldTitle, newTitle string) (models.CoverSet, error) {
	oldSlug, newSlug := Sanitize(oldTitle), Sanitize(newTitle)
	if oldSlug == newSlug {
		return d.Paths(newTitle), nil
	}
	for _, size := range Sizes {
		from, to := d.file(size, oldSlug), d.file(size, newSlug)
		if err := os.Rename(from, to); err != nil && !errors.Is(err, os.ErrNotExist) {
			return models.CoverSet{}, fmt.Errorf("rename %s cover: %w", size.Name, err)
		}
	}
	return d.Paths(newTitle), nil
}

// Remove deletes every rendition of title.
func (d *Deriver) Remove(title string) error {
	slug := Sanitize(title)
	var errs []error
	for _, size := range Sizes {
		if err := os.Remove(d.file(size, slug)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RemoveSet deletes the files recorded in covers.
func (d *Deriver) RemoveSet(covers *models.CoverSet) error {
	if covers == nil {
		return nil
	}
	var errs []error
	for _, web := range []string{covers.Thumbnail, covers.Medium, covers.Large} {
		if web == "" {
			continue
		}
		if err := os.Remove(d.Resolve(web)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Prune deletes cover files whose base name is not in keep and returns how
// many were removed.
func (d *Deriver) Prune(keep map[string]struct{}) (int, error) {
	removed := 0
	for _, size := range Sizes {
		dir := filepath.Join(d.root, size.Name)
		entries, err := os.ReadDir(dir)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return removed, err
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if _, ok := keep[entry.Name()]; ok {
				continue
			}
			if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

// RemoveAll deletes every rendition directory.
func (d *Deriver) RemoveAll() error {
	var errs []error
	for _, size := range Sizes {
		if err := os.RemoveAll(filepath.Join(d.root, size.Name)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Deriver) file(size Size, slug string) string {
	return filepath.Join(d.root, size.Name, slug+".jpg")
}

func webPath(size Size, slug string) string {
	return path.Join(WebPrefix, size.Name, slug+".jpg")
}

func writeRendition(target string, src image.Image, width int) error {
	bounds := src.Bounds()
	height := bounds.Dy() * width / bounds.Dx()
	if height < 1 {
		height = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".cover-*")
	if err != nil {
		return err
	}
	if err := jpeg.Encode(tmp, dst, &jpeg.Options{Quality: quality}); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
