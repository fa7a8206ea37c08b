package reports

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mmdatafocus/records_backend/schema"
	"github.com/mmdatafocus/records_backend/store"
	"github.com/xuri/excelize/v2"
)

const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportRecords writes records as one sheet: an id column, one column per
// field in form order, then the audit timestamps.
func ExportRecords(w io.Writer, sheetName string, fields schema.FieldDescriptors, records []*store.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheetName == "" {
		sheetName = "Sheet1"
	}
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}

	headings := []string{"ID"}
	for _, fd := range fields {
		if fd.UIType == schema.UIPassword {
			continue
		}
		headings = append(headings, fd.Label)
	}
	headings = append(headings, "Created at", "Updated at")

	for i, h := range headings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return err
		}
	}

	for r, rec := range records {
		row := []any{rec.ID}
		for _, fd := range fields {
			if fd.UIType == schema.UIPassword {
				continue
			}
			row = append(row, CellValue(fd, rec.Values[fd.Name]))
		}
		row = append(row, rec.CreatedAt.UTC().Format(time.RFC3339), rec.UpdatedAt.UTC().Format(time.RFC3339))

		start, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetName, start, &row); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

// CellValue renders one value for a spreadsheet cell. Select fields show the
// option label rather than the stored value.
func CellValue(fd schema.FieldDescriptor, v any) any {
	switch x := v.(type) {
	case nil:
		return ""
	case []string:
		labels := make([]string, len(x))
		for i, s := range x {
			labels[i] = optionLabel(fd, s)
		}
		return strings.Join(labels, ", ")
	case string:
		return optionLabel(fd, x)
	case time.Time:
		if fd.Type == schema.Date {
			return x.UTC().Format("2006-01-02")
		}
		return x.UTC().Format(time.RFC3339)
	}
	return v
}

func optionLabel(fd schema.FieldDescriptor, value string) string {
	for _, o := range fd.Options {
		if o.Value == value {
			return o.Label
		}
	}
	return value
}
