package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"
)

var csvHeader = []string{"Timestamp", "Action", "TargetType", "ActorID", "Payload", "Success"}

// ExportCSV streams audit entries matching the filter as CSV rows.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer, f Filter) error {
	if f.Limit <= 0 {
		f.Limit = 1000
	}
	entries, err := s.List(ctx, f)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, e := range entries {
		payload, _ := json.Marshal(e.Payload)
		row := []string{
			e.CreatedAt.UTC().Format(time.RFC3339),
			string(e.Action),
			string(e.TargetType),
			e.ActorID,
			string(payload),
			strconv.FormatBool(e.Success),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
