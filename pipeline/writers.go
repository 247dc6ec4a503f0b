package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/aluiziolira/itch-bundle-valuer/models"
)

var recordHeader = []string{
	"source", "bundle_id", "bundle_name", "game_id", "title", "price", "flag",
	"url", "author", "author_url", "classification", "scraped_at",
}

func recordRow(r *models.GameRecord) []string {
	bundleID := ""
	if r.BundleID > 0 {
		bundleID = strconv.FormatInt(r.BundleID, 10)
	}
	g := r.Game
	return []string{
		r.Source,
		bundleID,
		r.BundleName,
		strconv.FormatInt(g.ID, 10),
		g.Title,
		g.Price,
		string(g.Flag),
		g.URL,
		g.User.Name,
		g.User.URL,
		g.Classification,
		r.ScrapedAt.Format(time.RFC3339),
	}
}

// exportFile is the file behind a streaming writer.
type exportFile struct {
	kind string
	file *os.File
	buf  *bufio.Writer
	mu   sync.Mutex
}

func createExportFile(filename, kind string) (*exportFile, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create %s file: %w", kind, err)
	}
	return &exportFile{kind: kind, file: f, buf: bufio.NewWriter(f)}, nil
}

// close flushes pending bytes and releases the file.
func (e *exportFile) close() error {
	if err := e.buf.Flush(); err != nil {
		e.file.Close()
		return fmt.Errorf("flush %s file: %w", e.kind, err)
	}
	return e.file.Close()
}

// validate ensures something reached the disk.
func (e *exportFile) validate() error {
	info, err := os.Stat(e.file.Name())
	if err != nil {
		return fmt.Errorf("stat %s file: %w", e.kind, err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("%s file is empty", e.kind)
	}
	return nil
}

// CSVWriter writes one row per record under a fixed header.
type CSVWriter struct {
	*exportFile
	csv *csv.Writer
}

// NewCSVWriter creates filename, and its directory, and writes the header.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	out, err := createExportFile(filename, "csv")
	if err != nil {
		return nil, err
	}
	cw := &CSVWriter{exportFile: out, csv: csv.NewWriter(out.buf)}
	if err := cw.writeRows([][]string{recordHeader}); err != nil {
		out.file.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	return cw, nil
}

func (cw *CSVWriter) Write(records []*models.GameRecord) error {
	rows := make([][]string, 0, len(records))
	for _, record := range records {
		rows = append(rows, recordRow(record))
	}
	return cw.writeRows(rows)
}

// writeRows hands rows to the file so a crash loses at most one batch.
func (cw *CSVWriter) writeRows(rows [][]string) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if err := cw.csv.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv rows: %w", err)
	}
	if err := cw.buf.Flush(); err != nil {
		return fmt.Errorf("flush csv rows: %w", err)
	}
	return nil
}

func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.close()
}

func (cw *CSVWriter) Validate() error {
	return cw.validate()
}

// JSONWriter writes newline-delimited JSON records, the format the
// ownership loader reads back.
type JSONWriter struct {
	*exportFile
	enc *json.Encoder
}

// NewJSONWriter creates filename and its directory.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	out, err := createExportFile(filename, "json")
	if err != nil {
		return nil, err
	}
	return &JSONWriter{exportFile: out, enc: json.NewEncoder(out.buf)}, nil
}

func (jw *JSONWriter) Write(records []*models.GameRecord) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, record := range records {
		if err := jw.enc.Encode(record); err != nil {
			return fmt.Errorf("encode record for game %d: %w", record.Game.ID, err)
		}
	}
	if err := jw.buf.Flush(); err != nil {
		return fmt.Errorf("flush json records: %w", err)
	}
	return nil
}

func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	return jw.close()
}

func (jw *JSONWriter) Validate() error {
	return jw.validate()
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
