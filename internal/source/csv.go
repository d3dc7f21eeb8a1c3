package source

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// CSVText flattens a Google billing CSV export into label lines.
//
// The export starts with key/value rows ("Invoice number,5011671234") and
// is followed by an item table whose first column is the domain name. Meta
// rows become "Key: value" lines; the first item row adds a "Domain name:" line.
func CSVText(data []byte) (string, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\ufeff"))))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var lines []string
	inTable, headerSeen := false, false
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("reading csv: %w", err)
		}

		cells := trimCells(row)
		if len(cells) == 0 {
			if len(lines) > 0 {
				inTable = true
			}
			continue
		}
		if !inTable && len(cells) > 2 {
			inTable = true
		}

		if !inTable {
			if len(cells) == 1 {
				lines = append(lines, cells[0])
			} else {
				lines = append(lines, cells[0]+": "+cells[1])
			}
			continue
		}
		if !headerSeen {
			headerSeen = true
			continue
		}
		if domain := strings.TrimSpace(row[0]); domain != "" {
			lines = append(lines, "Domain name: "+domain)
			break
		}
	}
	return strings.Join(lines, "\n"), nil
}

// trimCells trims every cell and drops trailing empty ones
func trimCells(row []string) []string {
	cells := make([]string, len(row))
	for i, c := range row {
		cells[i] = strings.TrimSpace(c)
	}
	for len(cells) > 0 && cells[len(cells)-1] == "" {
		cells = cells[:len(cells)-1]
	}
	return cells
}
