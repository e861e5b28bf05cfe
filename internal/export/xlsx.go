package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"olympspa/internal/interval"
	"olympspa/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	ReservationsSheet = "Reservas"
	ConflictsSheet    = "Conflitos"
)

var (
	reservationHeaders = []string{"ID", "Check-in", "Check-out", "Noites", "Hóspedes", "Status", "Sessão", "Evento", "Criada em"}
	conflictHeaders    = []string{"ID", "Sessão", "Evento", "Check-in", "Check-out", "Hóspedes", "Motivo", "Detectado em"}
)

// Build lays out the ledger as a workbook with one sheet per table.
// The caller owns the returned file and must Close it.
func Build(reservations []*models.Reservation, conflicts []*models.Conflict) (*excelize.File, error) {
	f := excelize.NewFile()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("error creating style: %v", err)
	}

	index, err := f.NewSheet(ReservationsSheet)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)
	if _, err := f.NewSheet(ConflictsSheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("error creating sheet: %v", err)
	}
	_ = f.DeleteSheet("Sheet1")

	writeHeader(f, ReservationsSheet, reservationHeaders, headerStyle)
	for i, r := range reservations {
		writeRow(f, ReservationsSheet, i+2, []interface{}{
			r.ID,
			interval.Format(r.From),
			interval.Format(r.To),
			nights(r.Range()),
			r.Guests,
			r.Status,
			r.SessionID,
			r.EventID,
			formatTimestamp(r.CreatedAt),
		})
	}

	writeHeader(f, ConflictsSheet, conflictHeaders, headerStyle)
	for i, c := range conflicts {
		writeRow(f, ConflictsSheet, i+2, []interface{}{
			c.ID,
			c.SessionID,
			c.EventID,
			interval.Format(c.From),
			interval.Format(c.To),
			c.Guests,
			c.Reason,
			formatTimestamp(c.DetectedAt),
		})
	}

	_ = f.SetColWidth(ReservationsSheet, "A", "A", 38)
	_ = f.SetColWidth(ReservationsSheet, "B", "I", 20)
	_ = f.SetColWidth(ConflictsSheet, "A", "H", 20)

	return f, nil
}

// WriteXLSX streams the workbook to w.
func WriteXLSX(w io.Writer, reservations []*models.Reservation, conflicts []*models.Conflict) error {
	f, err := Build(reservations, conflicts)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %v", err)
	}
	return nil
}

// SaveToDir writes the workbook under dir and returns its path.
func SaveToDir(dir string, now time.Time, reservations []*models.Reservation, conflicts []*models.Conflict) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %v", err)
	}

	f, err := Build(reservations, conflicts)
	if err != nil {
		return "", err
	}
	defer f.Close()

	filePath := filepath.Join(dir, fmt.Sprintf("reservas_%s.xlsx", now.UTC().Format("20060102_150405")))
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %v", err)
	}
	return filePath, nil
}

func writeHeader(f *excelize.File, sheet string, headers []string, style int) {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
		_ = f.SetCellStyle(sheet, cell, cell, style)
	}
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

// nights counts whole days; sub-day stays report 0.
func nights(r interval.Range) int {
	return int(r.Duration() / (24 * time.Hour))
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}
