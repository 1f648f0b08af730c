package uploads

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"event-ticketing/internal/apperr"
	"event-ticketing/internal/config"
)

// Kind selects the allow-list and sub-directory for an upload. Private kinds are kept out of the
// served tree.
type Kind struct {
	Dir          string
	AllowedTypes []string
	Private      bool
}

var (
	EventImage = Kind{
		Dir:          "events",
		AllowedTypes: []string{"image/png", "image/jpeg", "image/gif"},
	}
	IdentityDocument = Kind{
		Dir:          "identity",
		AllowedTypes: []string{"image/png", "image/jpeg", "application/pdf"},
		Private:      true,
	}
)

// Store saves sniffed, size-checked files. Public files are referenced by their URL, private ones
// by a path relative to the private directory.
type Store struct {
	baseDir      string
	privateDir   string
	publicPrefix string
	maxSize      int64
}

func NewStore(cfg config.UploadConfig) *Store {
	return &Store{
		baseDir:      cfg.Dir,
		privateDir:   cfg.PrivateDir,
		publicPrefix: strings.TrimRight(cfg.PublicPrefix, "/"),
		maxSize:      cfg.MaxSizeBytes,
	}
}

func (s *Store) Save(fh *multipart.FileHeader, kind Kind) (string, error) {
	if fh.Size > s.maxSize {
		return "", apperr.ErrFileTooLarge.With(fmt.Sprintf("file exceeds the %d MB limit", s.maxSize>>20))
	}

	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	mtype, err := mimetype.DetectReader(src)
	if err != nil {
		return "", fmt.Errorf("detect upload type: %w", err)
	}
	if !mimetype.EqualsAny(mtype.String(), kind.AllowedTypes...) {
		return "", apperr.ErrFileTypeInvalid.With(
			fmt.Sprintf("file type %s is not allowed, expected one of %s", mtype.String(), strings.Join(kind.AllowedTypes, ", ")))
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind upload: %w", err)
	}

	root := s.baseDir
	if kind.Private {
		root = s.privateDir
	}
	dir := filepath.Join(root, kind.Dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	name := uuid.NewString() + mtype.Extension()
	dst, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, io.LimitReader(src, s.maxSize+1)); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}

	if kind.Private {
		return path.Join(kind.Dir, name), nil
	}
	return path.Join(s.publicPrefix, kind.Dir, name), nil
}

// PrivatePath resolves a reference returned by Save for a private kind to its file on disk.
func (s *Store) PrivatePath(ref string) (string, error) {
	if !validRef(ref) || strings.HasPrefix(ref, "/") {
		return "", apperr.ErrDocumentNotFound
	}
	return filepath.Join(s.privateDir, filepath.FromSlash(ref)), nil
}

// Delete removes a file previously returned by Save. Unknown or foreign paths are ignored.
func (s *Store) Delete(ref string) error {
	var file string
	if rel, ok := strings.CutPrefix(ref, s.publicPrefix+"/"); ok {
		if !validRef(rel) {
			return nil
		}
		file = filepath.Join(s.baseDir, filepath.FromSlash(rel))
	} else {
		p, err := s.PrivatePath(ref)
		if err != nil {
			return nil
		}
		file = p
	}
	err := os.Remove(file)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func validRef(rel string) bool {
	return rel != "" && !strings.Contains(rel, "..") && !strings.Contains(rel, "\\")
}
