package pipeline

import (
	"fmt"
	"os"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/aluiziolira/itch-bundle-valuer/models"
)

// XLSXSheet is the sheet that holds scraped games.
const XLSXSheet = "Games"

// XLSXWriter collects records into a workbook that is saved on Close.
type XLSXWriter struct {
	filename string
	book     *excelize.File
	row      int
	saved    bool
	mu       sync.Mutex
}

// NewXLSXWriter prepares a workbook with a bold header row.
func NewXLSXWriter(filename string) (*XLSXWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	book := excelize.NewFile()
	if err := book.SetSheetName("Sheet1", XLSXSheet); err != nil {
		book.Close()
		return nil, fmt.Errorf("rename xlsx sheet: %w", err)
	}

	header := make([]interface{}, len(recordHeader))
	for i, h := range recordHeader {
		header[i] = h
	}
	if err := book.SetSheetRow(XLSXSheet, "A1", &header); err != nil {
		book.Close()
		return nil, fmt.Errorf("write xlsx header: %w", err)
	}

	bold, err := book.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		err = book.SetRowStyle(XLSXSheet, 1, 1, bold)
	}
	if err != nil {
		book.Close()
		return nil, fmt.Errorf("style xlsx header: %w", err)
	}

	return &XLSXWriter{
		filename: filename,
		book:     book,
		row:      1,
	}, nil
}

// Write appends one row per record.
func (xw *XLSXWriter) Write(records []*models.GameRecord) error {
	xw.mu.Lock()
	defer xw.mu.Unlock()

	for _, record := range records {
		cell, err := excelize.CoordinatesToCellName(1, xw.row+1)
		if err != nil {
			return fmt.Errorf("xlsx cell: %w", err)
		}

		fields := recordRow(record)
		values := make([]interface{}, len(fields))
		for i, field := range fields {
			values[i] = field
		}
		// keep ids numeric so the sheet sorts them properly
		values[3] = record.Game.ID
		if record.BundleID > 0 {
			values[1] = record.BundleID
		}

		if err := xw.book.SetSheetRow(XLSXSheet, cell, &values); err != nil {
			return fmt.Errorf("write xlsx row: %w", err)
		}
		xw.row++
	}
	return nil
}

// Close saves the workbook.
func (xw *XLSXWriter) Close() error {
	xw.mu.Lock()
	defer xw.mu.Unlock()

	if xw.saved {
		return nil
	}
	if err := xw.book.SaveAs(xw.filename); err != nil {
		xw.book.Close()
		return fmt.Errorf("save xlsx file: %w", err)
	}
	xw.saved = true
	return xw.book.Close()
}

// Validate ensures the saved workbook exists and holds at least one game.
func (xw *XLSXWriter) Validate() error {
	info, err := os.Stat(xw.filename)
	if err != nil {
		return fmt.Errorf("stat xlsx file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("xlsx file is empty")
	}

	xw.mu.Lock()
	rows := xw.row
	xw.mu.Unlock()
	if rows <= 1 {
		return fmt.Errorf("xlsx file has no games")
	}
	return nil
}
