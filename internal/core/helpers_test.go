package core

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"sync"
	"testing"

	"tiler-backend/internal/storage"

	"github.com/stretchr/testify/require"
)

// createGradientImage returns an opaque image where every pixel is distinct
// enough to catch off-by-one placement.
func createGradientImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: uint8((x * 7) ^ (y * 13)), A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// pngHeader returns a PNG signature and IHDR chunk declaring the given size
// with no pixel data behind it.
func pngHeader(width, height uint32) []byte {
	ihdr := make([]byte, 0, 17)
	ihdr = append(ihdr, "IHDR"...)
	ihdr = binary.BigEndian.AppendUint32(ihdr, width)
	ihdr = binary.BigEndian.AppendUint32(ihdr, height)
	ihdr = append(ihdr, 8, 6, 0, 0, 0) // 8-bit RGBA, no interlace

	out := []byte("\x89PNG\r\n\x1a\n")
	out = binary.BigEndian.AppendUint32(out, 13)
	out = append(out, ihdr...)
	out = binary.BigEndian.AppendUint32(out, crc32.ChecksumIEEE(ihdr))
	return out
}

var errInjected = errors.New("injected failure")

// faultyStore wraps a local provider and fails selected operations by key.
type faultyStore struct {
	storage.Provider

	failPut    func(key string) bool
	failGet    func(key string) bool
	failDelete func(key string) bool

	mu      sync.Mutex
	deleted []string
}

func newFaultyStore(t *testing.T) *faultyStore {
	t.Helper()
	local, err := storage.NewLocalProvider(t.TempDir())
	require.NoError(t, err)
	return &faultyStore{Provider: local}
}

func (s *faultyStore) PutObject(ctx context.Context, key string, data io.Reader) error {
	if s.failPut != nil && s.failPut(key) {
		// drain part of the stream like a store that dies mid-upload
		_, _ = io.CopyN(io.Discard, data, 16)
		return errInjected
	}
	return s.Provider.PutObject(ctx, key, data)
}

func (s *faultyStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	if s.failGet != nil && s.failGet(key) {
		return nil, errInjected
	}
	return s.Provider.GetObject(ctx, key)
}

func (s *faultyStore) DeleteObject(ctx context.Context, key string) error {
	s.mu.Lock()
	s.deleted = append(s.deleted, key)
	s.mu.Unlock()

	if s.failDelete != nil && s.failDelete(key) {
		return errInjected
	}
	return s.Provider.DeleteObject(ctx, key)
}

func (s *faultyStore) requireEmpty(t *testing.T) {
	t.Helper()
	objs, err := s.ListObjects(context.Background(), "runs")
	require.NoError(t, err)
	require.Empty(t, objs, "scratch artifacts left behind")
}

func contains(sub string) func(string) bool {
	return func(key string) bool { return strings.Contains(key, sub) }
}
