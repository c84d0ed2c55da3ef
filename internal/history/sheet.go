package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet the records live on
const SheetName = "Applications"

// statusFills maps a status substring to its cell fill colour. Matching is
// case-insensitive and the first hit wins.
var statusFills = []struct {
	match string
	color string
}{
	{"applied", "C6EFCE"},
	{"interview", "FFEB9C"},
	{"rejected", "FFC7CE"},
	{"offer", "BDD7EE"},
}

// SheetStore keeps records in an xlsx workbook the user can open and edit
type SheetStore struct {
	path string
}

func NewSheetStore(path string) *SheetStore {
	return &SheetStore{path: path}
}

// Load implements Store. A missing workbook is an empty set. Columns are
// located by header, so a user reordering them does no harm.
func (s *SheetStore) Load(ctx context.Context) ([]Record, error) {
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	sheet := sheets[0]
	if idx, err := f.GetSheetIndex(SheetName); err == nil && idx >= 0 {
		sheet = SheetName
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	index := columnIndex(rows[0])
	var records []Record
	for _, row := range rows[1:] {
		ordered := make([]string, len(Columns))
		empty := true
		for i, col := range index {
			if col >= 0 && col < len(row) {
				ordered[i] = row[col]
				if strings.TrimSpace(row[col]) != "" {
					empty = false
				}
			}
		}
		if empty {
			continue
		}
		records = append(records, RecordFromRow(ordered))
	}
	return records, nil
}

// columnIndex maps each of Columns to its position in header, -1 if absent
func columnIndex(header []string) []int {
	index := make([]int, len(Columns))
	for i, name := range Columns {
		index[i] = -1
		for j, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				index[i] = j
				break
			}
		}
	}
	return index
}

// Save implements Store. The workbook is written to a temporary file and
// renamed into place.
func (s *SheetStore) Save(ctx context.Context, records []Record) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	styles, err := fillStyles(f)
	if err != nil {
		return err
	}

	for i, r := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		rowNum := i + 2
		cells := r.Row()
		row := make([]interface{}, len(cells))
		for j, c := range cells {
			row[j] = c
		}
		cell, _ := excelize.CoordinatesToCellName(1, rowNum)
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", rowNum, err)
		}

		if style, ok := styleFor(styles, string(r.Status)); ok {
			statusCell, _ := excelize.CoordinatesToCellName(3, rowNum)
			if err := f.SetCellStyle(SheetName, statusCell, statusCell, style); err != nil {
				return fmt.Errorf("failed to style %s: %w", statusCell, err)
			}
		}
	}

	if err := addStatusValidation(f, len(records)); err != nil {
		return err
	}
	f.SetColWidth(SheetName, "A", "B", 32)
	f.SetColWidth(SheetName, "C", "C", 12)
	f.SetColWidth(SheetName, "D", "D", 28)
	f.SetColWidth(SheetName, "E", "F", 14)

	return s.writeAtomic(f)
}

func (s *SheetStore) writeAtomic(f *excelize.File) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".hiretrack-*.xlsx")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := f.Write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close workbook: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to replace workbook: %w", err)
	}
	return nil
}

// addStatusValidation restricts the status column to a drop-down of the
// known statuses. Free text is still kept on load.
func addStatusValidation(f *excelize.File, n int) error {
	last := n + 1
	if last < 2 {
		last = 2
	}
	dv := excelize.NewDataValidation(true)
	dv.Sqref = fmt.Sprintf("C2:C%d", last)

	options := make([]string, len(Statuses))
	for i, st := range Statuses {
		options[i] = string(st)
	}
	if err := dv.SetDropList(options); err != nil {
		return fmt.Errorf("failed to build status list: %w", err)
	}
	if err := f.AddDataValidation(SheetName, dv); err != nil {
		return fmt.Errorf("failed to add status validation: %w", err)
	}
	return nil
}

func fillStyles(f *excelize.File) (map[string]int, error) {
	styles := make(map[string]int, len(statusFills))
	for _, fill := range statusFills {
		id, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{fill.color}, Pattern: 1},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create %s style: %w", fill.match, err)
		}
		styles[fill.color] = id
	}
	return styles, nil
}

func styleFor(styles map[string]int, status string) (int, bool) {
	color := FillColor(status)
	if color == "" {
		return 0, false
	}
	return styles[color], true
}

// FillColor returns the fill colour a status cell gets, "" for none
func FillColor(status string) string {
	lower := strings.ToLower(status)
	for _, fill := range statusFills {
		if strings.Contains(lower, fill.match) {
			return fill.color
		}
	}
	return ""
}

func (s *SheetStore) Close() error { return nil }
