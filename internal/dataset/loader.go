package dataset

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"voice-pipeline-go/internal/types"
)

type columns struct {
	sid, status, recording, from, to, direction, duration, start, end int
}

// detectColumns maps header cells to call fields by name heuristics.
func detectColumns(header []string) columns {
	c := columns{-1, -1, -1, -1, -1, -1, -1, -1, -1}
	set := func(idx *int, i int) {
		if *idx == -1 {
			*idx = i
		}
	}
	for i, h := range header {
		l := strings.ToLower(strings.TrimSpace(h))
		l = strings.NewReplacer("_", "", " ", "").Replace(l)
		switch {
		case l == "sid" || l == "callsid" || l == "callid":
			set(&c.sid, i)
		case strings.Contains(l, "recording") || strings.Contains(l, "audio") || strings.Contains(l, "url"):
			set(&c.recording, i)
		case strings.Contains(l, "status"):
			set(&c.status, i)
		case l == "from" || l == "callfrom" || l == "caller":
			set(&c.from, i)
		case l == "to" || l == "callto":
			set(&c.to, i)
		case strings.Contains(l, "direction"):
			set(&c.direction, i)
		case strings.Contains(l, "duration"):
			set(&c.duration, i)
		case strings.Contains(l, "start"):
			set(&c.start, i)
		case strings.Contains(l, "end"):
			set(&c.end, i)
		}
	}
	return c
}

func cell(r []string, idx int) string {
	if idx >= 0 && idx < len(r) {
		return strings.TrimSpace(r[idx])
	}
	return ""
}

// LoadCalls reads call metadata from the first sheet of an xlsx workbook.
// Rows without a call identifier are skipped.
func LoadCalls(path string) ([]types.CallMeta, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) <= 1 {
		return nil, fmt.Errorf("no data rows")
	}

	c := detectColumns(rows[0])
	if c.sid == -1 {
		return nil, fmt.Errorf("no call id column in header %v", rows[0])
	}

	seen := map[string]struct{}{}
	var out []types.CallMeta
	for _, r := range rows[1:] {
		meta := types.CallMeta{
			SID:          cell(r, c.sid),
			Status:       cell(r, c.status),
			RecordingURL: cell(r, c.recording),
			From:         cell(r, c.from),
			To:           cell(r, c.to),
			Direction:    cell(r, c.direction),
			StartTime:    cell(r, c.start),
			EndTime:      cell(r, c.end),
		}
		if meta.SID == "" {
			continue
		}
		if _, dup := seen[meta.SID]; dup {
			continue
		}
		seen[meta.SID] = struct{}{}
		meta.Duration, _ = strconv.Atoi(cell(r, c.duration))
		lower := strings.ToLower(meta.RecordingURL)
		if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
			meta.RecordingURL = ""
		}
		out = append(out, meta)
	}
	return out, nil
}
