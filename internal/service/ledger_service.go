package service

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"lodestar/internal/models"
	"lodestar/internal/store"
	"lodestar/internal/utils"
)

// Query are the read-side refinements the dashboard may ask for on top of a
// raw recent listing: an exact device filter and a chronological order.
type Query struct {
	Limit    int
	DeviceID string
	Order    string // "asc" or "desc" (default)
}

type LedgerService interface {
	Append(ctx context.Context, kind models.Kind, deviceID string, payload models.Record) error
	ListRecent(ctx context.Context, kind models.Kind, q Query) ([]models.Record, error)
	Export(ctx context.Context, kind models.Kind, format string, q Query) (string, error)
}

type ledgerService struct {
	store     store.Store
	exportDir string
}

func NewLedgerService(st store.Store, exportDir string) LedgerService {
	if exportDir == "" {
		exportDir = "./data/export"
	}
	if err := os.MkdirAll(exportDir, 0o755); err != nil {
		log.Printf("Failed to create export directory: %v", err)
	}
	return &ledgerService{store: st, exportDir: exportDir}
}

// Append stamps the record with the authenticated device id and the server
// receive time, then stores it. Records are immutable once appended; no
// identifier is returned.
func (s *ledgerService) Append(ctx context.Context, kind models.Kind, deviceID string, payload models.Record) error {
	rec := make(models.Record, len(payload)+2)
	for k, v := range payload {
		rec[k] = v
	}
	rec["deviceId"] = deviceID
	rec["serverReceivedAt"] = time.Now().UTC().Format(time.RFC3339)

	return s.store.AppendRecord(ctx, kind, rec)
}

func (s *ledgerService) ListRecent(ctx context.Context, kind models.Kind, q Query) ([]models.Record, error) {
	records, err := s.store.ListRecent(ctx, kind, q.Limit)
	if err != nil {
		return nil, err
	}
	return refine(records, q), nil
}

// refine applies the post-processing contract the two backends cannot agree
// on themselves: device filtering and a stable chronological sort.
func refine(records []models.Record, q Query) []models.Record {
	out := records
	if q.DeviceID != "" {
		out = make([]models.Record, 0, len(records))
		for _, rec := range records {
			if rec.DeviceID() == q.DeviceID {
				out = append(out, rec)
			}
		}
	}

	asc := q.Order == "asc"
	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := out[i].SortTime(), out[j].SortTime()
		if asc {
			return ti.Before(tj)
		}
		return tj.Before(ti)
	})
	return out
}

// Export writes the refined listing to a file in the export directory and
// returns its path. Formats: csv, excel/xlsx, json.
func (s *ledgerService) Export(ctx context.Context, kind models.Kind, format string, q Query) (string, error) {
	records, err := s.ListRecent(ctx, kind, q)
	if err != nil {
		return "", err
	}

	timestamp := time.Now().UTC().Format("20060102_150405")

	switch format {
	case "csv":
		path := filepath.Join(s.exportDir, fmt.Sprintf("%s_export_%s.csv", kind, timestamp))
		if err := utils.WriteRecordsCSV(path, records); err != nil {
			return "", err
		}
		return path, nil

	case "excel", "xlsx":
		path := filepath.Join(s.exportDir, fmt.Sprintf("%s_export_%s.xlsx", kind, timestamp))
		if err := utils.WriteRecordsExcel(path, kind, records); err != nil {
			return "", err
		}
		return path, nil

	case "json":
		path := filepath.Join(s.exportDir, fmt.Sprintf("%s_export_%s.json", kind, timestamp))
		if err := utils.WriteRecordsJSON(path, records); err != nil {
			return "", err
		}
		return path, nil

	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}
