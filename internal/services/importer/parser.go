// Package importer turns uploaded usage exports (JSON rows or spreadsheet
// rows) into per-representative activity records for the invoice builder.
package importer

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/user/marfanet-crm/internal/models"
	"github.com/user/marfanet-crm/internal/services/pricing"
)

// ErrUnparseableFile - the upload as a whole cannot be read as the expected
// format. Fatal for the operation; nothing is committed.
var ErrUnparseableFile = errors.New("file cannot be parsed as a usage export")

// Activity - normalized per-representative usage extracted from one row
type Activity struct {
	AdminUsername    string
	RepresentativeID uint
	LimitedVolumes   [pricing.MaxDurationMonths]decimal.Decimal // GB per duration bucket
	UnlimitedCounts  [pricing.MaxDurationMonths]decimal.Decimal // subscriptions per duration bucket
}

// HasActivity reports whether any duration bucket is non-zero.
func (a *Activity) HasActivity() bool {
	for i := 0; i < pricing.MaxDurationMonths; i++ {
		if a.LimitedVolumes[i].IsPositive() || a.UnlimitedCounts[i].IsPositive() {
			return true
		}
	}
	return false
}

// Result - outcome of one import parse
type Result struct {
	RecordsProcessed int        `json:"records_processed"`
	RecordsSkipped   int        `json:"records_skipped"`
	Activities       []Activity `json:"-"`
}

// RepresentativeResolver resolves an admin username to a representative,
// creating one with the default price schedule when none exists. The
// get-or-create must be atomic (upsert) so duplicate usernames within one
// import map to a single representative.
type RepresentativeResolver interface {
	ResolveRepresentative(adminUsername string) (*models.Representative, error)
}

// Parser - bulk import parser
type Parser struct {
	resolver RepresentativeResolver
}

// NewParser creates a new parser.
func NewParser(resolver RepresentativeResolver) *Parser {
	return &Parser{resolver: resolver}
}

// JSON field names expected on each row.
const identifierField = "admin_username"

func limitedField(month int) string {
	return fmt.Sprintf("limited_%d_month_volume", month)
}

func unlimitedField(month int) string {
	return fmt.Sprintf("unlimited_%d_month", month)
}

// ParseJSON parses a JSON array of flat row objects.
func (p *Parser) ParseJSON(data []byte) (*Result, error) {
	var rows []map[string]interface{}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseableFile, err)
	}
	return p.ParseRows(rows)
}

// ParseRows processes named-field rows. Malformed rows are skipped and
// counted; they never abort the import.
func (p *Parser) ParseRows(rows []map[string]interface{}) (*Result, error) {
	result := &Result{}

	for i, row := range rows {
		username, ok := stringField(row, identifierField)
		if !ok || username == "" {
			result.RecordsSkipped++
			continue
		}

		// All 12 duration fields must be present. A missing field marks the
		// row malformed, which is stricter than a zero value.
		activity := Activity{AdminUsername: username}
		malformed := false
		for month := 1; month <= pricing.MaxDurationMonths; month++ {
			lv, lok := row[limitedField(month)]
			uv, uok := row[unlimitedField(month)]
			if !lok || !uok {
				malformed = true
				break
			}
			activity.LimitedVolumes[month-1] = parseNumeric(lv)
			activity.UnlimitedCounts[month-1] = parseNumeric(uv)
		}
		if malformed {
			log.Printf("[Import] Row %d (%s): missing duration fields, skipped", i+1, username)
			result.RecordsSkipped++
			continue
		}

		if !activity.HasActivity() {
			result.RecordsSkipped++
			continue
		}

		if err := p.attach(&activity, result); err != nil {
			log.Printf("[Import] Row %d (%s): %v, skipped", i+1, username, err)
			result.RecordsSkipped++
		}
	}

	return result, nil
}

// attach resolves the representative and appends the activity.
func (p *Parser) attach(activity *Activity, result *Result) error {
	rep, err := p.resolver.ResolveRepresentative(activity.AdminUsername)
	if err != nil {
		return fmt.Errorf("resolve representative: %w", err)
	}
	activity.RepresentativeID = rep.ID
	result.Activities = append(result.Activities, *activity)
	result.RecordsProcessed++
	return nil
}

// parseNumeric converts a numeric-or-numeric-string cell to a decimal,
// defaulting unparseable values to zero.
func parseNumeric(v interface{}) decimal.Decimal {
	switch n := v.(type) {
	case nil:
		return decimal.Zero
	case float64:
		return decimal.NewFromFloat(n)
	case int:
		return decimal.NewFromInt(int64(n))
	case int64:
		return decimal.NewFromInt(n)
	case json.Number:
		if d, err := decimal.NewFromString(n.String()); err == nil {
			return d
		}
		return decimal.Zero
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return decimal.Zero
		}
		if d, err := decimal.NewFromString(s); err == nil {
			return d
		}
		return decimal.Zero
	default:
		return decimal.Zero
	}
}

func stringField(row map[string]interface{}, key string) (string, bool) {
	v, ok := row[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(s), true
}
