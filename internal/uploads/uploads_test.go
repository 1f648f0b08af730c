package uploads

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"event-ticketing/internal/apperr"
	"event-ticketing/internal/config"
)

func pngBytes(t *testing.T) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.Black)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// fileHeader round-trips content through a real multipart request so Open works.
func fileHeader(t *testing.T, name string, content []byte) *multipart.FileHeader {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(1<<20))
	return req.MultipartForm.File["file"][0]
}

func newStore(t *testing.T, maxSize int64) (*Store, string) {
	dir := t.TempDir()
	return NewStore(config.UploadConfig{Dir: dir, PublicPrefix: "/static/uploads/", PrivateDir: t.TempDir(), MaxSizeBytes: maxSize}), dir
}

func TestSave_AcceptsAllowedType(t *testing.T) {
	store, dir := newStore(t, 5<<20)

	url, err := store.Save(fileHeader(t, "poster.bin", pngBytes(t)), EventImage)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "/static/uploads/events/"))
	assert.True(t, strings.HasSuffix(url, ".png"))

	_, err = os.Stat(filepath.Join(dir, "events", filepath.Base(url)))
	assert.NoError(t, err)

	require.NoError(t, store.Delete(url))
	_, err = os.Stat(filepath.Join(dir, "events", filepath.Base(url)))
	assert.True(t, os.IsNotExist(err))
}

func TestSave_RejectsDisallowedType(t *testing.T) {
	store, _ := newStore(t, 5<<20)

	_, err := store.Save(fileHeader(t, "notes.png", []byte("just some text pretending to be an image")), EventImage)
	assert.ErrorIs(t, err, apperr.ErrFileTypeInvalid)

	_, err = store.Save(fileHeader(t, "id.pdf", []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")), EventImage)
	assert.ErrorIs(t, err, apperr.ErrFileTypeInvalid)
}

func TestSave_IdentityDocumentIsPrivate(t *testing.T) {
	store, publicDir := newStore(t, 5<<20)

	ref, err := store.Save(fileHeader(t, "id.pdf", []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")), IdentityDocument)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "identity/"))
	assert.True(t, strings.HasSuffix(ref, ".pdf"))
	assert.NoDirExists(t, filepath.Join(publicDir, "identity"))

	file, err := store.PrivatePath(ref)
	require.NoError(t, err)
	assert.FileExists(t, file)
	assert.False(t, strings.HasPrefix(file, publicDir))

	require.NoError(t, store.Delete(ref))
	assert.NoFileExists(t, file)
}

func TestPrivatePath_RejectsEscapes(t *testing.T) {
	store, _ := newStore(t, 5<<20)
	for _, ref := range []string{"", "/etc/passwd", "../secret", "identity/../../secret", `identity\..\secret`} {
		_, err := store.PrivatePath(ref)
		assert.ErrorIs(t, err, apperr.ErrDocumentNotFound, ref)
	}
}

func TestSave_RejectsOversizedFile(t *testing.T) {
	store, _ := newStore(t, 16)

	_, err := store.Save(fileHeader(t, "big.png", pngBytes(t)), EventImage)
	assert.ErrorIs(t, err, apperr.ErrFileTooLarge)
}

func TestDelete_IgnoresForeignPaths(t *testing.T) {
	store, _ := newStore(t, 5<<20)
	assert.NoError(t, store.Delete("/etc/passwd"))
	assert.NoError(t, store.Delete("/static/uploads/../../secret"))
	assert.NoError(t, store.Delete("/static/uploads/events/missing.png"))
}
