package blob

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrFileTooLarge   = errors.New("blob file too large")
	ErrExecutableFile = errors.New("executable files are not allowed")
	ErrInvalidPath    = errors.New("invalid blob path")
)

// Written describes bytes persisted by Write.
type Written struct {
	SizeBytes        int64
	DetectedMimeType string
}

// Service stores raw object bytes on the local filesystem. Paths handed to
// it are relative and confined to the root directory.
type Service struct {
	rootDir string
}

func NewService(rootDir string) (*Service, error) {
	if strings.TrimSpace(rootDir) == "" {
		return nil, fmt.Errorf("blob root directory is required")
	}

	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating blob root directory: %w", err)
	}

	return &Service{rootDir: rootDir}, nil
}

// Write streams src into storagePath through a temporary file. When maxBytes
// is positive, more than maxBytes bytes fails with ErrFileTooLarge and leaves
// nothing behind.
func (s *Service) Write(storagePath string, src io.Reader, maxBytes int64) (*Written, error) {
	absPath, err := s.resolveStoragePath(storagePath)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating blob directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(absPath), filepath.Base(absPath)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("creating temporary blob file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	sniff := make([]byte, 512)
	sniffN, sniffErr := io.ReadFull(src, sniff)
	if sniffErr != nil && sniffErr != io.EOF && sniffErr != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("reading blob data: %w", sniffErr)
	}
	sniff = sniff[:sniffN]

	if isExecutableSignature(sniff) {
		return nil, ErrExecutableFile
	}

	var reader io.Reader = io.MultiReader(bytes.NewReader(sniff), src)
	if maxBytes > 0 {
		reader = io.LimitReader(reader, maxBytes+1)
	}
	written, err := io.Copy(tmpFile, reader)
	if err != nil {
		return nil, fmt.Errorf("writing blob file: %w", err)
	}
	if maxBytes > 0 && written > maxBytes {
		return nil, ErrFileTooLarge
	}
	if err := tmpFile.Close(); err != nil {
		return nil, fmt.Errorf("closing temporary blob file: %w", err)
	}

	if err := os.Rename(tmpPath, absPath); err != nil {
		return nil, fmt.Errorf("finalizing blob file: %w", err)
	}

	return &Written{
		SizeBytes:        written,
		DetectedMimeType: DetectMimeType(sniff),
	}, nil
}

func (s *Service) Open(storagePath string) (*os.File, error) {
	absPath, err := s.resolveStoragePath(storagePath)
	if err != nil {
		return nil, err
	}
	return os.Open(absPath)
}

func (s *Service) Delete(storagePath string) error {
	absPath, err := s.resolveStoragePath(storagePath)
	if err != nil {
		return err
	}

	err = os.Remove(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("deleting blob file: %w", err)
	}

	return nil
}

func (s *Service) resolveStoragePath(storagePath string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(storagePath))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", ErrInvalidPath
	}

	return filepath.Join(s.rootDir, clean), nil
}

// ObjectPath returns the relative path for an object id inside bucket,
// fanned out by the first characters of the id.
func ObjectPath(bucket, objectID string) string {
	return filepath.ToSlash(filepath.Join(bucket, objectPathPrefix(objectID), objectID))
}

func objectPathPrefix(objectID string) string {
	_, randomPart, found := strings.Cut(objectID, "_")
	if !found {
		randomPart = objectID
	}
	if len(randomPart) < 2 {
		return "xx"
	}
	return randomPart[:2]
}

func DetectMimeType(sniff []byte) string {
	if len(sniff) == 0 {
		return "application/octet-stream"
	}

	return TrimMimeParams(http.DetectContentType(sniff))
}

func isExecutableSignature(sniff []byte) bool {
	if len(sniff) < 2 {
		return false
	}

	if sniff[0] == 'M' && sniff[1] == 'Z' {
		return true // PE/COFF (Windows)
	}
	if len(sniff) >= 4 {
		if bytes.Equal(sniff[:4], []byte{0x7f, 'E', 'L', 'F'}) {
			return true // ELF
		}

		machoMagics := [][]byte{
			{0xfe, 0xed, 0xfa, 0xce},
			{0xce, 0xfa, 0xed, 0xfe},
			{0xfe, 0xed, 0xfa, 0xcf},
			{0xcf, 0xfa, 0xed, 0xfe},
			{0xca, 0xfe, 0xba, 0xbe},
			{0xbe, 0xba, 0xfe, 0xca},
			{0xca, 0xfe, 0xba, 0xbf},
			{0xbf, 0xba, 0xfe, 0xca},
		}
		for _, magic := range machoMagics {
			if bytes.Equal(sniff[:4], magic) {
				return true
			}
		}
	}

	if sniff[0] == '#' && sniff[1] == '!' {
		return true // shebang scripts
	}

	return false
}

func TrimMimeParams(contentType string) string {
	if idx := strings.Index(contentType, ";"); idx != -1 {
		return strings.ToLower(strings.TrimSpace(contentType[:idx]))
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

var blockedMimeTypes = map[string]struct{}{
	"image/svg+xml":               {},
	"text/html":                   {},
	"application/xhtml+xml":       {},
	"application/javascript":      {},
	"text/javascript":             {},
	"application/x-javascript":    {},
	"text/ecmascript":             {},
	"application/ecmascript":      {},
	"application/x-httpd-php":     {},
	"application/x-sh":            {},
	"application/x-msdownload":    {},
	"application/x-msdos-program": {},
	"application/x-executable":    {},
}

// IsBlockedMimeType reports whether content of this type must never be
// stored, whatever the bucket allows.
func IsBlockedMimeType(mimeType string) bool {
	_, blocked := blockedMimeTypes[TrimMimeParams(mimeType)]
	return blocked
}
