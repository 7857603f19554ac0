// Package excel reads and writes the xlsx workbooks exchanged with the
// management office.
package excel

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/seyone-projects/reda-backend/internal/models"
)

const reservationsSheet = "Reservations"

var (
	ErrMissingColumns  = errors.New("workbook is missing required columns")
	ErrInvalidWorkbook = errors.New("file is not a valid xlsx workbook")
)

var reservationHeaders = []string{
	"ID", "Resource", "Association", "User ID", "Date", "Kind", "Time Slot", "Start", "End", "Status", "Created At",
}

// WriteReservations renders rs as a single-sheet workbook with a period title row.
func WriteReservations(w io.Writer, from, to time.Time, rs []*models.Reservation) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(reservationsSheet)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	lastCol, _ := excelize.ColumnNumberToName(len(reservationHeaders))
	_ = f.SetCellValue(reservationsSheet, "A1", periodTitle(from, to))
	_ = f.MergeCell(reservationsSheet, "A1", lastCol+"1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(reservationsSheet, "A1", "A1", titleStyle)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	if err := f.SetSheetRow(reservationsSheet, "A2", &reservationHeaders); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	_ = f.SetCellStyle(reservationsSheet, "A2", lastCol+"2", headerStyle)

	for i, r := range rs {
		cell, _ := excelize.CoordinatesToCellName(1, i+3)
		status := "active"
		if r.IsCancelled {
			status = "cancelled"
		}
		row := []interface{}{
			r.ID, r.ResourceID, r.AssociationID, r.UserID,
			r.BookingDate.Format("2006-01-02"), string(r.Kind), string(r.TimeSlot),
			r.StartTime, r.EndTime, status, r.CreatedAt.Format(time.RFC3339),
		}
		if err := f.SetSheetRow(reservationsSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+3, err)
		}
	}

	_ = f.SetColWidth(reservationsSheet, "A", lastCol, 16)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func periodTitle(from, to time.Time) string {
	switch {
	case from.IsZero() && to.IsZero():
		return "All reservations"
	case to.IsZero():
		return "Reservations from " + from.Format("02.01.2006")
	case from.IsZero():
		return "Reservations until " + to.Format("02.01.2006")
	}
	return fmt.Sprintf("Period: %s - %s", from.Format("02.01.2006"), to.Format("02.01.2006"))
}

// UserRow is one data row of a user import sheet. Row is the 1-based sheet row.
type UserRow struct {
	Row          int
	Username     string
	Fullname     string
	Email        string
	MobileNumber string
	Address      string
	DOB          string
	Password     string
}

var userColumns = map[string]string{
	"username":      "username",
	"fullname":      "fullname",
	"full name":     "fullname",
	"name":          "fullname",
	"email":         "email",
	"mobilenumber":  "mobilenumber",
	"mobile number": "mobilenumber",
	"mobile":        "mobilenumber",
	"address":       "address",
	"dob":           "dob",
	"password":      "password",
}

var requiredUserColumns = []string{"fullname", "email", "mobilenumber", "password"}

// ReadUsers parses the first sheet of an import workbook. The first row is the
// header; columns are matched case-insensitively and blank rows are skipped.
func ReadUsers(r io.Reader) ([]UserRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWorkbook, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	index := make(map[string]int)
	for i, h := range rows[0] {
		if key, ok := userColumns[strings.ToLower(strings.TrimSpace(h))]; ok {
			if _, dup := index[key]; !dup {
				index[key] = i
			}
		}
	}
	var missing []string
	for _, c := range requiredUserColumns {
		if _, ok := index[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	cell := func(row []string, key string) string {
		i, ok := index[key]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	out := make([]UserRow, 0, len(rows)-1)
	for n, row := range rows[1:] {
		if blank(row) {
			continue
		}
		out = append(out, UserRow{
			Row:          n + 2,
			Username:     cell(row, "username"),
			Fullname:     cell(row, "fullname"),
			Email:        cell(row, "email"),
			MobileNumber: cell(row, "mobilenumber"),
			Address:      cell(row, "address"),
			DOB:          cell(row, "dob"),
			Password:     cell(row, "password"),
		})
	}
	return out, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
