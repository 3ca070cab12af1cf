package backup

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Backup file format versions. V1 is a bare JSON document; V2 is a JSON
// header line followed by the gzip-compressed V1 document.
const (
	FormatV1 = 1
	FormatV2 = 2
)

// MaxDecompressedSize caps how large a V2 payload may inflate to.
const MaxDecompressedSize = 200 << 20

// BackupHeader is the plain-text first line of a V2 backup file.
type BackupHeader struct {
	Version    int               `json:"version"`
	CreatedAt  time.Time         `json:"created_at"`
	Checksum   string            `json:"checksum"`
	Reports    int               `json:"reports"`
	HasCurrent bool              `json:"has_current"`
	Compressed bool              `json:"compressed"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Encode writes b to w in the V2 format.
func Encode(w io.Writer, b *BackupFormat) error {
	var payload bytes.Buffer
	gz := gzip.NewWriter(&payload)
	if err := json.NewEncoder(gz).Encode(b); err != nil {
		return fmt.Errorf("compressing payload: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("compressing payload: %w", err)
	}

	header, err := json.Marshal(BackupHeader{
		Version:    FormatV2,
		CreatedAt:  b.CreatedAt,
		Checksum:   checksum(payload.Bytes()),
		Reports:    len(b.Reports),
		HasCurrent: b.Current != nil,
		Compressed: true,
	})
	if err != nil {
		return fmt.Errorf("marshaling header: %w", err)
	}

	bw := bufio.NewWriter(w)
	bw.Write(header)
	bw.WriteByte('\n')
	bw.Write(payload.Bytes())
	return bw.Flush()
}

// Decode reads a V2 backup from r. The payload must match the header's
// checksum before it is decompressed.
func Decode(r io.Reader) (*BackupHeader, *BackupFormat, error) {
	header, payload, err := readPayload(r)
	if err != nil {
		return nil, nil, err
	}

	gz, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("opening payload: %w", err)
	}
	defer gz.Close()

	limited := &io.LimitedReader{R: gz, N: MaxDecompressedSize + 1}
	var b BackupFormat
	if err := json.NewDecoder(limited).Decode(&b); err != nil {
		if limited.N <= 0 {
			return nil, nil, fmt.Errorf("decompressed payload exceeds %d bytes", MaxDecompressedSize)
		}
		return nil, nil, fmt.Errorf("parsing backup data: %w", err)
	}
	return header, &b, nil
}

// DecodeHeader reads just the header line from r.
func DecodeHeader(r io.Reader) (*BackupHeader, error) {
	return readHeader(bufio.NewReader(r))
}

// WriteV2 encodes b into a new file at path, creating the directory with
// 0700 and the file with 0600 permissions.
func WriteV2(path string, b *BackupFormat) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	if err := Encode(f, b); err != nil {
		f.Close()
		return fmt.Errorf("writing backup: %w", err)
	}
	return f.Close()
}

// ReadV2 decodes the V2 backup at path.
func ReadV2(path string) (*BackupFormat, error) {
	var b *BackupFormat
	err := withFile(path, func(f *os.File) (err error) {
		_, b, err = Decode(f)
		return err
	})
	return b, err
}

// ReadV2Header reads the header of the V2 backup at path without touching
// the payload.
func ReadV2Header(path string) (*BackupHeader, error) {
	var h *BackupHeader
	err := withFile(path, func(f *os.File) (err error) {
		h, err = DecodeHeader(f)
		return err
	})
	return h, err
}

// VerifyChecksum checks the payload of the V2 backup at path against its
// header without decompressing it.
func VerifyChecksum(path string) error {
	return withFile(path, func(f *os.File) error {
		_, _, err := readPayload(f)
		return err
	})
}

// DetectFormat reports whether path holds a V1 or V2 backup by looking at
// its first line.
func DetectFormat(path string) (int, error) {
	var version int
	err := withFile(path, func(f *os.File) error {
		line, err := bufio.NewReader(f).ReadSlice('\n')
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
			return fmt.Errorf("reading first line: %w", err)
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			return errors.New("file is empty")
		}

		var h BackupHeader
		switch {
		case json.Unmarshal(line, &h) == nil && h.Version == FormatV2:
			version = FormatV2
		case line[0] == '{':
			version = FormatV1
		default:
			return errors.New("unrecognized backup format")
		}
		return nil
	})
	return version, err
}

func withFile(path string, fn func(*os.File) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()
	return fn(f)
}

// readPayload returns the header and compressed payload after checking the
// checksum.
func readPayload(r io.Reader) (*BackupHeader, []byte, error) {
	br := bufio.NewReader(r)
	header, err := readHeader(br)
	if err != nil {
		return nil, nil, err
	}
	payload, err := io.ReadAll(br)
	if err != nil {
		return nil, nil, fmt.Errorf("reading compressed payload: %w", err)
	}
	if got := checksum(payload); got != header.Checksum {
		return nil, nil, fmt.Errorf("checksum mismatch: expected %s, got %s", header.Checksum, got)
	}
	return header, payload, nil
}

func readHeader(br *bufio.Reader) (*BackupHeader, error) {
	line, err := br.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("reading header line: %w", err)
	}
	var h BackupHeader
	if err := json.Unmarshal(bytes.TrimSpace(line), &h); err != nil {
		return nil, fmt.Errorf("parsing header: %w", err)
	}
	if h.Version != FormatV2 {
		return nil, fmt.Errorf("expected V2 format, got version %d", h.Version)
	}
	return &h, nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}
