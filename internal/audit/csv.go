package audit

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

var bom = []byte("\xef\xbb\xbf")

// EncodeHeader renders a header record as a single CSV line.
func EncodeHeader(header []string) []byte {
	b, err := encode([][]string{header})
	if err != nil {
		// csv.Writer only fails on write errors, which bytes.Buffer never returns.
		panic(err)
	}
	return b
}

// EncodeDeletionLog renders events in arrival order, without a header.
func EncodeDeletionLog(events []DeletionEvent) ([]byte, error) {
	records := make([][]string, 0, len(events))
	for _, ev := range events {
		records = append(records, []string{
			ev.Project,
			strconv.FormatInt(ev.ElementID, 10),
			ev.Time.Format(TimeLayout),
			ev.User,
		})
	}
	return encode(records)
}

// EncodeSnapshot renders snapshot rows, without a header.
func EncodeSnapshot(rows []SnapshotRow) ([]byte, error) {
	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		records = append(records, []string{
			r.Project,
			strconv.FormatInt(r.ElementID, 10),
			r.Category,
			r.Name,
			r.Level,
		})
	}
	return encode(records)
}

// EncodeReport renders reconciled rows, without a header.
func EncodeReport(rows []ReconciledRow) ([]byte, error) {
	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		records = append(records, []string{
			r.Project,
			strconv.FormatInt(r.ElementID, 10),
			r.Category,
			r.Name,
			r.Level,
			r.Time.Format(TimeLayout),
			r.User,
		})
	}
	return encode(records)
}

func encode(records [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(records); err != nil {
		return nil, fmt.Errorf("encode csv: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeDeletionLog parses a deletion log. Rows that cannot be parsed are
// skipped and counted.
func DecodeDeletionLog(data []byte) (events []DeletionEvent, skipped int, err error) {
	records, err := decode(data, DeletionLogHeader)
	if err != nil {
		return nil, 0, fmt.Errorf("decode deletion log: %w", err)
	}
	for _, rec := range records {
		if len(rec) != len(DeletionLogHeader) {
			skipped++
			continue
		}
		id, ok := parseID(rec[1])
		if !ok {
			skipped++
			continue
		}
		ts, ok := parseTime(rec[2])
		if !ok {
			skipped++
			continue
		}
		events = append(events, DeletionEvent{Project: rec[0], ElementID: id, Time: ts, User: rec[3]})
	}
	return events, skipped, nil
}

// DecodeSnapshot parses a snapshot table.
func DecodeSnapshot(data []byte) (rows []SnapshotRow, skipped int, err error) {
	records, err := decode(data, SnapshotHeader)
	if err != nil {
		return nil, 0, fmt.Errorf("decode snapshot: %w", err)
	}
	for _, rec := range records {
		if len(rec) != len(SnapshotHeader) {
			skipped++
			continue
		}
		id, ok := parseID(rec[1])
		if !ok {
			skipped++
			continue
		}
		rows = append(rows, SnapshotRow{Project: rec[0], ElementID: id, Category: rec[2], Name: rec[3], Level: rec[4]})
	}
	return rows, skipped, nil
}

// DecodeReport parses a reconciled report.
func DecodeReport(data []byte) (rows []ReconciledRow, skipped int, err error) {
	records, err := decode(data, ReportHeader)
	if err != nil {
		return nil, 0, fmt.Errorf("decode report: %w", err)
	}
	for _, rec := range records {
		if len(rec) != len(ReportHeader) {
			skipped++
			continue
		}
		id, ok := parseID(rec[1])
		if !ok {
			skipped++
			continue
		}
		ts, ok := parseTime(rec[5])
		if !ok {
			skipped++
			continue
		}
		rows = append(rows, ReconciledRow{
			Project:   rec[0],
			ElementID: id,
			Category:  rec[2],
			Name:      rec[3],
			Level:     rec[4],
			Time:      ts,
			User:      rec[6],
		})
	}
	return rows, skipped, nil
}

// decode reads all records, dropping a leading BOM and the header line.
func decode(data []byte, header []string) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, bom)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var records [][]string
	first := true
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if first {
			first = false
			if isHeader(rec, header) {
				continue
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

func isHeader(rec, header []string) bool {
	return len(rec) > 0 && strings.TrimSpace(rec[0]) == header[0]
}

func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return id, err == nil
}

func parseTime(s string) (time.Time, bool) {
	ts, err := time.ParseInLocation(TimeLayout, strings.TrimSpace(s), time.Local)
	return ts, err == nil
}
