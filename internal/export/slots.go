package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"slotbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Slots"

var columns = []string{"Slot ID", "Start (UTC)", "End (UTC)", "Status", "Reservation ID", "Client", "Hold expires", "Confirmed at"}

// Exporter writes provider slot schedules as XLSX files under a directory.
type Exporter struct {
	dir    string
	logger *zerolog.Logger
}

func NewExporter(dir string, logger *zerolog.Logger) *Exporter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Exporter{dir: dir, logger: logger}
}

// SaveProviderSlots renders slots into a workbook and returns the file path.
func (e *Exporter) SaveProviderSlots(provider *models.Provider, from, to time.Time, slots []*models.SlotDetail) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	f, err := Build(provider, from, to, slots)
	if err != nil {
		return "", err
	}
	defer f.Close()

	fileName := fmt.Sprintf("slots_%d_%s_to_%s.xlsx",
		provider.ID, from.UTC().Format("20060102T1504"), to.UTC().Format("20060102T1504"))
	filePath := filepath.Join(e.dir, fileName)

	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("save workbook: %w", err)
	}

	e.logger.Info().Str("file_path", filePath).Int("slots", len(slots)).Msg("Slot export created")
	return filePath, nil
}

// Build lays out the workbook: a title row, a header row and one row per slot.
func Build(provider *models.Provider, from, to time.Time, slots []*models.SlotDetail) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("%s: %s - %s",
		provider.Name, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339)))
	lastCol, _ := excelize.ColumnNumberToName(len(columns))
	_ = f.MergeCell(sheetName, "A1", lastCol+"1")

	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, title := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, title)
	}
	_ = f.SetCellStyle(sheetName, "A2", lastCol+"2", headerStyle)

	for i, s := range slots {
		row := i + 3
		values := []interface{}{
			s.ID,
			s.StartTime.UTC().Format(time.RFC3339),
			s.EndTime.UTC().Format(time.RFC3339),
			string(s.Status),
			optionalID(s.ReservationID),
			s.ClientName,
			optionalTime(s.ExpiresAt),
			optionalTime(s.ConfirmedAt),
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			f.Close()
			return nil, fmt.Errorf("write row %d: %w", row, err)
		}

		if style := statusStyle(f, s.Status); style != 0 {
			statusCell, _ := excelize.CoordinatesToCellName(4, row)
			_ = f.SetCellStyle(sheetName, statusCell, statusCell, style)
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 10)
	_ = f.SetColWidth(sheetName, "B", "C", 22)
	_ = f.SetColWidth(sheetName, "D", "E", 15)
	_ = f.SetColWidth(sheetName, "F", "F", 25)
	_ = f.SetColWidth(sheetName, "G", "H", 22)

	return f, nil
}

func statusStyle(f *excelize.File, status models.SlotStatus) int {
	var color string
	switch status {
	case models.SlotReserved:
		color = "#FFF2CC"
	case models.SlotConfirmed:
		color = "#E2EFDA"
	default:
		return 0
	}
	style, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
	})
	if err != nil {
		return 0
	}
	return style
}

func optionalID(id *int64) interface{} {
	if id == nil {
		return ""
	}
	return *id
}

func optionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
