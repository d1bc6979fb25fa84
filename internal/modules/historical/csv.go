package historical

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/finreport/internal/domain"
)

// ParseSeriesCSV reads "Date,<value>" rows (a header row is required). The value
// column is "Close", "Adj Close", "Rate" or "Value", whichever appears first.
func ParseSeriesCSV(r io.Reader, id string) (domain.Series, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return domain.Series{}, fmt.Errorf("failed to read series header: %w", err)
	}

	dateCol, valueCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "date":
			dateCol = i
		case "adj close", "close", "rate", "value":
			if valueCol == -1 {
				valueCol = i
			}
		}
	}
	if dateCol == -1 || valueCol == -1 {
		return domain.Series{}, fmt.Errorf("series %s: need Date and Close/Rate/Value columns", id)
	}

	series := domain.Series{ID: id}
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.Series{}, fmt.Errorf("series %s: %w", id, err)
		}
		if dateCol >= len(row) || valueCol >= len(row) {
			continue
		}

		raw := strings.TrimSpace(row[valueCol])
		// Provider exports mark holidays with "null" or blank cells
		if raw == "" || strings.EqualFold(raw, "null") {
			continue
		}
		date, err := time.Parse(domain.DateLayout, strings.TrimSpace(row[dateCol]))
		if err != nil {
			return domain.Series{}, fmt.Errorf("series %s: invalid date %q", id, row[dateCol])
		}
		value, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
		if err != nil {
			return domain.Series{}, fmt.Errorf("series %s: invalid value %q", id, raw)
		}
		series.Points = append(series.Points, domain.Point{Date: date, Value: value})
	}

	return series.Normalize(), nil
}
