package recipients

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// CSVHeader is the first line of every exported address book.
var CSVHeader = []string{"Addresses", "Amount"}

// ParseCSV reads an address book. The first record is treated as the header
// and dropped, blank lines are skipped, and an address that fails validation
// becomes an Invalid row instead of an error.
func ParseCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var rows []Row
	header := true
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		if header {
			header = false
			continue
		}
		if isEmptyRecord(record) {
			continue
		}

		var amount string
		if len(record) > 1 {
			amount = record[1]
		}
		rows = append(rows, NewRow(ParseDestination(record[0]), amount))
	}
	return rows, nil
}

// ParseCSVString is ParseCSV over an in-memory document.
func ParseCSVString(s string) ([]Row, error) {
	return ParseCSV(strings.NewReader(s))
}

// WriteCSV writes the header and one line per row that has address text.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, row := range rows {
		addr := row.Destination.String()
		if addr == "" {
			continue
		}
		if err := cw.Write([]string{addr, row.Amount}); err != nil {
			return fmt.Errorf("failed to write csv row %s: %w", row.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func isEmptyRecord(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
