package dataset

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
)

// Encoding names the text encoding a dataset was read with
type Encoding string

const (
	EncodingUTF8BOM Encoding = "utf-8-sig"
	EncodingGB18030 Encoding = "gb18030"
)

// tempSuffix is appended to the target path while a save is in progress
const tempSuffix = ".temp"

// Load reads a dataset whose header follows metadataLines opaque lines.
// UTF-8 (with or without BOM) is tried first, then GB18030.
func Load(path string, metadataLines int) (*Dataset, Encoding, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read dataset: %w", err)
	}

	text, enc, err := decode(raw)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", path, err)
	}

	metadata, table, err := splitMetadata(text, metadataLines)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", path, err)
	}

	reader := csv.NewReader(strings.NewReader(table))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, "", fmt.Errorf("parse table: %w", err)
	}
	if len(records) == 0 {
		return nil, "", fmt.Errorf("%s: no header row after %d metadata lines", path, metadataLines)
	}

	return New(metadata, records[0], records[1:]), enc, nil
}

// decode converts raw bytes to text, falling back to GB18030 when the input is not UTF-8
func decode(raw []byte) (string, Encoding, error) {
	if utf8.Valid(raw) {
		out, err := unicode.UTF8BOM.NewDecoder().Bytes(raw)
		if err == nil {
			return string(out), EncodingUTF8BOM, nil
		}
	}

	out, err := simplifiedchinese.GB18030.NewDecoder().Bytes(raw)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	// The GB18030 decoder substitutes U+FFFD for invalid sequences instead of failing
	if bytes.ContainsRune(out, utf8.RuneError) {
		return "", "", fmt.Errorf("%w: invalid byte sequence for both utf-8 and gb18030", ErrDecode)
	}
	return string(out), EncodingGB18030, nil
}

// splitMetadata cuts the first n lines (terminators included) from text
func splitMetadata(text string, n int) ([]string, string, error) {
	metadata := make([]string, 0, n)
	rest := text
	for i := 0; i < n; i++ {
		idx := strings.IndexByte(rest, '\n')
		if idx < 0 {
			return nil, "", fmt.Errorf("%w: found %d of %d lines", ErrMetadataTooShort, i, n)
		}
		metadata = append(metadata, rest[:idx+1])
		rest = rest[idx+1:]
	}
	return metadata, rest, nil
}

// Save writes the metadata and the table as UTF-8 with BOM to a temporary file,
// then replaces path with it. A crash mid-write leaves the previous file intact.
func Save(path string, ds *Dataset) error {
	payload, err := Encode(ds)
	if err != nil {
		return err
	}

	tmp := path + tempSuffix
	if err := os.WriteFile(tmp, payload, 0644); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write temp dataset: %w", err)
	}

	// Remove-then-rename; the window between the two leaves only the temp file on disk
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove previous dataset: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace dataset: %w", err)
	}

	return nil
}

// Encode renders the dataset exactly as Save writes it
func Encode(ds *Dataset) ([]byte, error) {
	columns, rows := ds.Snapshot()

	var buf bytes.Buffer
	for _, line := range ds.Metadata {
		buf.WriteString(line)
	}

	w := csv.NewWriter(&buf)
	if err := w.Write(columns); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("write rows: %w", err)
	}

	out, err := unicode.UTF8BOM.NewEncoder().Bytes(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("encode utf-8-sig: %w", err)
	}
	return out, nil
}

// Store persists a dataset
type Store interface {
	Save(ds *Dataset) error
}

// FileStore saves to a fixed path
type FileStore struct {
	Path string
}

// Save implements Store
func (s FileStore) Save(ds *Dataset) error {
	return Save(s.Path, ds)
}
