package bot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"zapisnik/internal/models"

	"github.com/xuri/excelize/v2"
)

// exportScheduleToExcel выгружает слоты всех календарей за период в xlsx.
func (b *Bot) exportScheduleToExcel(ctx context.Context, startDate, endDate time.Time) (string, error) {
	if err := os.MkdirAll(b.config.Exports.Path, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %v", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Расписание"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Период: %s - %s",
		startDate.Format("02.01.2006"), endDate.Format("02.01.2006")))

	headers := []string{"Календарь", "Дата", "Время", "Статус", "Описание", "Клиент", "Разбор"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, header)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A2", "G2", headerStyle)

	row := 3
	for _, cal := range b.config.Calendars {
		slots, err := b.slotRepo.GetSlotsInWindow(ctx, cal.ID, startDate, endDate)
		if err != nil {
			return "", fmt.Errorf("error getting slots for %s: %v", cal.ID, err)
		}

		for _, slot := range slots {
			_ = f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), cal.Name)
			_ = f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), slot.Start.Format("02.01.2006"))
			_ = f.SetCellValue(sheetName, fmt.Sprintf("C%d", row),
				fmt.Sprintf("%s - %s", slot.Start.Format("15:04"), slot.End.Format("15:04")))
			_ = f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), slotStatusLabel(slot.Status))
			_ = f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), slot.Summary)
			_ = f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), slot.ClientData)
			_ = f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), boolToYesNo(slot.NeedsReview))

			if styleID, styleErr := slotRowStyle(f, slot); styleErr == nil {
				_ = f.SetCellStyle(sheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("G%d", row), styleID)
			}
			row++
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 20)
	_ = f.SetColWidth(sheetName, "B", "C", 15)
	_ = f.SetColWidth(sheetName, "D", "D", 12)
	_ = f.SetColWidth(sheetName, "E", "F", 30)
	_ = f.SetColWidth(sheetName, "G", "G", 10)
	_ = f.MergeCell(sheetName, "A1", "G1")

	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("schedule_%s_to_%s.xlsx",
		startDate.Format("2006-01-02"),
		endDate.Format("2006-01-02"))
	filePath := filepath.Join(b.config.Exports.Path, fileName)

	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %v", err)
	}

	b.logger.Info().Str("file_path", filePath).Msg("Excel file created")
	return filePath, nil
}

func slotStatusLabel(status string) string {
	switch status {
	case models.StatusFree:
		return "Свободно"
	case models.StatusBooked:
		return "Занято"
	case models.StatusUnavailable:
		return "Снято"
	default:
		return status
	}
}

func slotRowStyle(f *excelize.File, slot *models.Slot) (int, error) {
	color := "#FFFFFF"
	switch {
	case slot.NeedsReview:
		color = "#FFC7CE"
	case slot.Status == models.StatusBooked:
		color = "#C6EFCE"
	case slot.Status == models.StatusFree:
		color = "#DDEBF7"
	}
	return f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "left",
			Vertical:   "top",
			WrapText:   true,
		},
	})
}

// boolToYesNo преобразует bool в "Да"/"Нет"
func boolToYesNo(b bool) string {
	if b {
		return "Да"
	}
	return "Нет"
}
