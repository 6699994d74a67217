package images

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 5), B: 128, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newAvatarService(t *testing.T) *AvatarService {
	t.Helper()

	storage, err := NewStorage(t.TempDir(), "avatars")
	require.NoError(t, err)
	return NewAvatarService(storage, slog.New(slog.DiscardHandler))
}

func TestAvatarSaveAndGet(t *testing.T) {
	svc := newAvatarService(t)
	data := testPNG(t, 128, 128)

	hash, err := svc.Save("usr-1", data)
	require.NoError(t, err)
	assert.NotEmpty(t, hash, "blurhash returned for valid image")

	stored, err := svc.Get("usr-1")
	require.NoError(t, err)
	assert.Equal(t, data, stored)
	assert.True(t, svc.Exists("usr-1"))
}

func TestAvatarSave_RejectsGarbage(t *testing.T) {
	svc := newAvatarService(t)

	_, err := svc.Save("usr-1", []byte("not an image"))
	assert.Error(t, err)
	assert.False(t, svc.Exists("usr-1"))
}

func TestAvatarSave_RejectsEmpty(t *testing.T) {
	svc := newAvatarService(t)

	_, err := svc.Save("usr-1", nil)
	assert.Error(t, err)
}

func TestAvatarDelete(t *testing.T) {
	svc := newAvatarService(t)

	_, err := svc.Save("usr-1", testPNG(t, 32, 32))
	require.NoError(t, err)

	require.NoError(t, svc.Delete("usr-1"))
	assert.False(t, svc.Exists("usr-1"))

	assert.NoError(t, svc.Delete("usr-1"), "delete is idempotent")
}

func TestAvatarETag_Stable(t *testing.T) {
	svc := newAvatarService(t)

	_, err := svc.Save("usr-1", testPNG(t, 32, 32))
	require.NoError(t, err)

	h1, err := svc.ETag("usr-1")
	require.NoError(t, err)
	h2, err := svc.ETag("usr-1")
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestComputeBlurHash_LargeImageDownscaled(t *testing.T) {
	data := testPNG(t, 600, 400)

	hash, err := ComputeBlurHash(data)
	require.NoError(t, err)
	assert.NotEmpty(t, hash)
}
