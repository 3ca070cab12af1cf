// Package intake inspects and validates evidence files before a council run
// is started for them.
package intake

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/nvandessel/forensic-council/internal/constants"
	"github.com/nvandessel/forensic-council/internal/sanitize"
)

// DefaultMaxBytes is the default upper bound on evidence size.
const DefaultMaxBytes = constants.DefaultMaxEvidenceBytes

// DefaultAllowedPrefixes are the accepted MIME type prefixes.
var DefaultAllowedPrefixes = constants.DefaultAllowedTypePrefixes

// sniffLen is how many bytes content detection looks at.
const sniffLen = constants.SniffLength

// File describes one piece of submitted evidence.
type File struct {
	Path        string `json:"path"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// Result is the outcome of validating a File.
type Result struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// Inspect stats and sniffs the file at path. The content type comes from
// the first bytes of the file and falls back to the extension when the
// content is not recognized.
func Inspect(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, fmt.Errorf("inspecting evidence: %w", err)
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("inspecting evidence: %s is a directory", filepath.Base(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return File{}, fmt.Errorf("opening evidence: %w", err)
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return File{}, fmt.Errorf("reading evidence: %w", err)
	}

	return File{
		Path:        path,
		Name:        sanitize.FileName(filepath.Base(path)),
		Size:        info.Size(),
		ContentType: DetectContentType(head[:n], path),
	}, nil
}

// DetectContentType returns the media type of content, without parameters.
// When the bytes are inconclusive the extension of name decides.
func DetectContentType(head []byte, name string) string {
	sniffed := "application/octet-stream"
	if len(head) > 0 {
		sniffed = mediaType(http.DetectContentType(head))
	}
	if sniffed != "application/octet-stream" && sniffed != "text/plain" {
		return sniffed
	}
	if byExt := mediaType(mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))); byExt != "" {
		return byExt
	}
	return sniffed
}

func mediaType(ct string) string {
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.TrimSpace(strings.SplitN(ct, ";", 2)[0])
	}
	return mt
}

// Validator accepts or rejects evidence files.
type Validator struct {
	// MaxBytes is the largest accepted file. Zero or less means no limit.
	MaxBytes int64

	// AllowedPrefixes are accepted MIME type prefixes such as "image/".
	// An empty list accepts every type.
	AllowedPrefixes []string
}

// NewValidator returns a validator with the default limits.
func NewValidator() Validator {
	return Validator{
		MaxBytes:        DefaultMaxBytes,
		AllowedPrefixes: append([]string(nil), DefaultAllowedPrefixes...),
	}
}

// Validate checks f against the validator's limits.
func (v Validator) Validate(f File) Result {
	if f.Size <= 0 {
		return Result{Error: "file is empty"}
	}
	if v.MaxBytes > 0 && f.Size > v.MaxBytes {
		return Result{Error: fmt.Sprintf("file is too large: %s exceeds the %s limit", humanize.IBytes(uint64(f.Size)), humanize.IBytes(uint64(v.MaxBytes)))}
	}
	if !v.allowed(f.ContentType) {
		ct := f.ContentType
		if ct == "" {
			ct = "unknown"
		}
		return Result{Error: fmt.Sprintf("unsupported file type %s: expected %s", ct, strings.Join(v.AllowedPrefixes, " or "))}
	}
	return Result{Valid: true}
}

func (v Validator) allowed(contentType string) bool {
	if len(v.AllowedPrefixes) == 0 {
		return true
	}
	ct := strings.ToLower(contentType)
	for _, p := range v.AllowedPrefixes {
		if p != "" && strings.HasPrefix(ct, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
