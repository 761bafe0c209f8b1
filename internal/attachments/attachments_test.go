package attachments

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := range 4 {
		for y := range 4 {
			img.Set(x, y, color.RGBA{R: uint8(x * 60), G: uint8(y * 60), B: 128, A: 255})
		}
	}
	return img
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "a.txt", want: "a.txt"},
		{in: "../../etc/passwd", want: "passwd"},
		{in: `C:\Users\x\report.pdf`, want: "report.pdf"},
		{in: "dir/", want: "dir"},
		{in: "", wantErr: true},
		{in: "..", wantErr: true},
		{in: "/", wantErr: true},
	}
	for _, tt := range tests {
		got, err := SanitizeName(tt.in)
		if tt.wantErr {
			require.ErrorIs(t, err, ErrInvalidName, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		require.Equal(t, tt.want, got)
	}
}

func TestWriteFileIsByteExact(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "files")
	s := New(dir)
	data := []byte{0x00, 0x01, 0xfe, 0xff, 'h', 'i'}

	p, err := s.WriteFile("../a.txt", data)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "a.txt"), p)

	got, err := os.ReadFile(p)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestWriteImageNormalizesToPNG(t *testing.T) {
	s := New(t.TempDir())
	s.now = func() time.Time { return time.UnixMilli(1700000000123) }

	var jpg bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpg, testImage(), nil))

	p, err := s.WriteImage(jpg.Bytes())
	require.NoError(t, err)
	require.Equal(t, "1700000000123.png", filepath.Base(p))

	f, err := os.Open(p)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 4, 4), img.Bounds())

	// Same millisecond does not overwrite the first image.
	var raw bytes.Buffer
	require.NoError(t, png.Encode(&raw, testImage()))
	p2, err := s.WriteImage(raw.Bytes())
	require.NoError(t, err)
	require.Equal(t, "1700000000123-1.png", filepath.Base(p2))

	got, err := os.ReadFile(p2)
	require.NoError(t, err)
	require.Equal(t, raw.Bytes(), got)
}

func TestWriteImageRejectsGarbage(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.WriteImage([]byte("not an image"))
	require.Error(t, err)
}
