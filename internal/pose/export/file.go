package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/abduction.report/internal/fsutil"
	"github.com/banshee-data/abduction.report/internal/pose/sampler"
	"github.com/banshee-data/abduction.report/internal/security"
)

// Format selects the export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat accepts "json" or "csv"; empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unknown export format %q (want json or csv)", s)
	}
}

// ContentType returns the HTTP media type of the format.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv"
	}
	return "application/json"
}

// Filename returns pose_data_<subject>_<UTC timestamp>.<ext>. An empty
// subject is written as "anon".
func Filename(subject string, at time.Time, f Format) string {
	if subject == "" {
		subject = "anon"
	}
	ts := at.UTC().Format("2006-01-02T15:04:05.000Z")
	ts = strings.NewReplacer(":", "-", ".", "-").Replace(ts)
	ext := string(f)
	if ext == "" {
		ext = string(FormatJSON)
	}
	return fmt.Sprintf("pose_data_%s_%s.%s", subject, ts, ext)
}

// Encode renders sess in format f.
func Encode(sess *sampler.Session, f Format) ([]byte, error) {
	var buf bytes.Buffer
	records := FromSession(sess)
	var err error
	switch f {
	case FormatCSV:
		err = WriteCSV(&buf, records)
	default:
		err = WriteJSON(&buf, records)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Writer writes finalized sessions into a directory.
type Writer struct {
	FS     fsutil.FileSystem
	Dir    string
	Format Format
}

// NewWriter returns a writer on the OS filesystem.
func NewWriter(dir string, f Format) *Writer {
	return &Writer{FS: fsutil.OSFileSystem{}, Dir: dir, Format: f}
}

// Write encodes sess and stores it under Dir, returning the file path. The
// file is named after the session end time.
func (w *Writer) Write(sess *sampler.Session) (string, error) {
	if sess == nil {
		return "", sampler.ErrNoSession
	}
	data, err := Encode(sess, w.Format)
	if err != nil {
		return "", err
	}
	if err := w.FS.MkdirAll(w.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	subject := sess.SubjectID
	if subject != "" {
		subject = security.SanitizeFilename(subject)
	}
	path, err := security.JoinWithin(w.Dir, Filename(subject, sess.EndedAt, w.Format))
	if err != nil {
		return "", err
	}
	if err := w.FS.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return path, nil
}
