package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/cardlinkapp/cardlink-server/internal/domain"
)

// Row is one parsed badge-export line: a card destined for one owner's list.
type Row struct {
	OwnerID string
	Card    domain.Card
}

// requiredColumns must all be present in the header line.
var requiredColumns = []string{"owner_id", "card_id", "first_name", "last_name"}

// ParseCSV reads a badge export. The first line is a header; column order is
// free. Unknown columns are ignored so organizers can ship extra fields.
func ParseCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range requiredColumns {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}

	field := func(record []string, name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}

		rows = append(rows, Row{
			OwnerID: field(record, "owner_id"),
			Card: domain.Card{
				ID:        field(record, "card_id"),
				FirstName: field(record, "first_name"),
				LastName:  field(record, "last_name"),
				Title:     field(record, "title"),
				Company:   field(record, "company"),
				Mobile:    field(record, "mobile"),
				Email:     field(record, "email"),
				LinkedIn:  field(record, "linkedin"),
				Twitter:   field(record, "twitter"),
				Notes:     field(record, "notes"),
			},
		})
	}

	return rows, nil
}
