// Package attachments writes received files and images to a local directory.
package attachments

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrInvalidName is returned for file names that do not reduce to a plain base name.
var ErrInvalidName = errors.New("invalid file name")

// Store writes attachments below a single directory.
type Store struct {
	dir string
	now func() time.Time
}

// New creates a Store rooted at dir. The directory is created on first write.
func New(dir string) *Store {
	return &Store{dir: dir, now: time.Now}
}

// Dir returns the root directory.
func (s *Store) Dir() string { return s.dir }

// SanitizeName strips any directory components from name.
func SanitizeName(name string) (string, error) {
	base := path.Base(strings.ReplaceAll(name, `\`, "/"))
	switch base {
	case "", ".", "..", "/":
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return base, nil
}

// WriteFile stores data under the base name of name and returns the path written.
// An existing file of the same name is replaced.
func (s *Store) WriteFile(name string, data []byte) (string, error) {
	base, err := SanitizeName(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create attachments dir: %w", err)
	}
	p := filepath.Join(s.dir, base)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return p, nil
}

// WriteImage decodes data (PNG, JPEG, GIF, BMP, TIFF or WebP) and stores it
// as <unix-millis>.png. It returns the path written.
func (s *Store) WriteImage(data []byte) (string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	var buf bytes.Buffer
	if format == "png" {
		buf.Write(data)
	} else if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create attachments dir: %w", err)
	}
	return s.create(strconv.FormatInt(s.now().UnixMilli(), 10), ".png", buf.Bytes())
}

// create writes data to the first free name among stem.ext, stem-1.ext, ...
func (s *Store) create(stem, ext string, data []byte) (string, error) {
	for i := 0; ; i++ {
		name := stem + ext
		if i > 0 {
			name = stem + "-" + strconv.Itoa(i) + ext
		}
		p := filepath.Join(s.dir, name)
		f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create image: %w", err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return "", fmt.Errorf("write image: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("close image: %w", err)
		}
		return p, nil
	}
}
