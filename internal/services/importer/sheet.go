package importer

import (
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/xuri/excelize/v2"
	"github.com/user/marfanet-crm/internal/services/pricing"
)

// Legacy spreadsheet layout: identifier in column A, limited volumes in
// columns H-M, unlimited counts in columns T-Y.
const (
	sheetIdentifierCol  = 0
	sheetLimitedStart   = 7  // column H
	sheetUnlimitedStart = 19 // column T
	sheetMinColumns     = sheetUnlimitedStart + pricing.MaxDurationMonths
)

// ParseSheet processes legacy fixed-column rows. Two consecutive fully-empty
// rows terminate the scan; trailing sheet padding is tolerated that way.
func (p *Parser) ParseSheet(rows [][]string) (*Result, error) {
	result := &Result{}

	emptyStreak := 0
	for i, row := range rows {
		if isEmptyRow(row) {
			emptyStreak++
			if emptyStreak >= 2 {
				break
			}
			continue
		}
		emptyStreak = 0

		username := ""
		if len(row) > sheetIdentifierCol {
			username = strings.TrimSpace(row[sheetIdentifierCol])
		}
		if username == "" {
			result.RecordsSkipped++
			continue
		}
		// Tolerate an exported header row
		if i == 0 && username == identifierField {
			continue
		}

		// Short rows lack duration columns: malformed, not zero activity
		if len(row) < sheetMinColumns {
			log.Printf("[Import] Sheet row %d (%s): %d columns, expected at least %d, skipped",
				i+1, username, len(row), sheetMinColumns)
			result.RecordsSkipped++
			continue
		}

		activity := Activity{AdminUsername: username}
		for m := 0; m < pricing.MaxDurationMonths; m++ {
			activity.LimitedVolumes[m] = parseNumeric(row[sheetLimitedStart+m])
			activity.UnlimitedCounts[m] = parseNumeric(row[sheetUnlimitedStart+m])
		}

		if !activity.HasActivity() {
			result.RecordsSkipped++
			continue
		}

		if err := p.attach(&activity, result); err != nil {
			log.Printf("[Import] Sheet row %d (%s): %v, skipped", i+1, username, err)
			result.RecordsSkipped++
		}
	}

	return result, nil
}

// ParseExcel reads the first sheet of an xlsx upload and feeds it through
// the legacy fixed-column path.
func (p *Parser) ParseExcel(r io.Reader) (*Result, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseableFile, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrUnparseableFile)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseableFile, err)
	}

	return p.ParseSheet(rows)
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
