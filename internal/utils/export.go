package utils

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/xuri/excelize/v2"

	"lodestar/internal/models"
)

var exportHeaders = []string{"Device ID", "Collected At", "Server Received At", "Payload"}

// reserved keys are rendered in their own columns; everything else lands in
// the payload column.
var reservedKeys = map[string]bool{
	"deviceId":         true,
	"collectedAt":      true,
	"serverReceivedAt": true,
}

func recordRow(rec models.Record) []string {
	payload := make(map[string]interface{}, len(rec))
	for k, v := range rec {
		if !reservedKeys[k] {
			payload[k] = v
		}
	}
	payloadJSON, _ := json.Marshal(payload)

	collectedAt, _ := rec["collectedAt"].(string)
	serverReceivedAt, _ := rec["serverReceivedAt"].(string)

	return []string{rec.DeviceID(), collectedAt, serverReceivedAt, string(payloadJSON)}
}

// WriteRecordsExcel writes a ledger listing as an XLSX workbook with one
// data sheet and a small info sheet.
func WriteRecordsExcel(path string, kind models.Kind, records []models.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Records"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return err
	}

	for i, header := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, header)
	}

	for rowIdx, rec := range records {
		row := recordRow(rec)
		for colIdx, value := range row {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			f.SetCellValue(sheet, cell, value)
		}
	}

	for i := 1; i <= len(exportHeaders); i++ {
		colName, _ := excelize.ColumnNumberToName(i)
		f.SetColWidth(sheet, colName, colName, 28)
	}

	f.NewSheet("Info")
	info := [][]interface{}{
		{"Kind", string(kind)},
		{"Records", len(records)},
		{"Exported At", time.Now().UTC().Format("2006-01-02 15:04:05")},
	}
	for i, pair := range info {
		f.SetCellValue("Info", fmt.Sprintf("A%d", i+1), pair[0])
		f.SetCellValue("Info", fmt.Sprintf("B%d", i+1), pair[1])
	}

	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	return f.SaveAs(path)
}

// WriteRecordsCSV writes a ledger listing as CSV with the same columns as
// the spreadsheet export.
func WriteRecordsCSV(path string, records []models.Record) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"device_id", "collected_at", "server_received_at", "payload"}); err != nil {
		return err
	}
	for _, rec := range records {
		if err := writer.Write(recordRow(rec)); err != nil {
			return err
		}
	}
	return nil
}

// WriteRecordsJSON writes the raw records as an indented JSON array.
func WriteRecordsJSON(path string, records []models.Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
