package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	log "github.com/sirupsen/logrus"

	"nadlan-scraper/config"
	"nadlan-scraper/models"
)

var (
	// amountRegexp captures a formatted monetary or numeric value.
	amountRegexp = regexp.MustCompile(`[\d,]+(?:\.\d+)?`)
	// floatRegexp captures a plain decimal number (rooms, sqm).
	floatRegexp = regexp.MustCompile(`\d+(?:\.\d+)?`)
)

// dateLayouts covers the textual date formats the portal has been seen to
// use. Day-first per the portal's locale.
var dateLayouts = []string{
	"02/01/2006",
	"02.01.2006",
	"02-01-2006",
	"2006-01-02",
}

// ValidationError means one row could not be normalized. The row is skipped
// and counted; it never aborts the run.
type ValidationError struct {
	Field string
	Value string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("row validation failed: %s %q", e.Field, e.Value)
}

// Extractor turns rendered results markup into transaction records. It is a
// pure transformation: no navigation, no session state.
type Extractor struct {
	sel    config.ResultSelectors
	logger *log.Entry
}

// NewExtractor creates an Extractor using the given selector table.
func NewExtractor(sel config.ResultSelectors, logger *log.Entry) *Extractor {
	return &Extractor{sel: sel, logger: logger}
}

// Parse locates the results rows in html and returns one RawTransaction per
// row, tagged with the page index it came from. Rows without an address cell
// are not result rows (header rows, ad banners) and are dropped here.
func (e *Extractor) Parse(html string, pageIndex int) ([]models.RawTransaction, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse results markup: %w", err)
	}

	var rows []models.RawTransaction
	doc.Find(e.sel.Row).Each(func(_ int, row *goquery.Selection) {
		address := cellText(row, e.sel.Address)
		if address == "" {
			return
		}

		rows = append(rows, models.RawTransaction{
			Address:         address,
			DealDate:        cellText(row, e.sel.DealDate),
			Price:           cellText(row, e.sel.Price),
			PropertyType:    cellText(row, e.sel.PropertyType),
			RoomCount:       cellText(row, e.sel.RoomCount),
			Area:            cellText(row, e.sel.Area),
			SourcePageIndex: pageIndex,
		})
	})

	e.logger.Debugf("page %d: parsed %d rows", pageIndex, len(rows))
	return rows, nil
}

// Normalize converts one raw row into a typed record. Date and price are
// mandatory; the descriptive fields are each independently optional and come
// back nil when the portal omitted them.
func (e *Extractor) Normalize(raw models.RawTransaction) (*models.TransactionRecord, error) {
	address := collapseWhitespace(raw.Address)
	if address == "" {
		return nil, &ValidationError{Field: "address", Value: raw.Address}
	}

	dealDate, ok := parseDate(raw.DealDate)
	if !ok {
		return nil, &ValidationError{Field: "dealDate", Value: raw.DealDate}
	}

	price, ok := parsePrice(raw.Price)
	if !ok {
		return nil, &ValidationError{Field: "price", Value: raw.Price}
	}

	return &models.TransactionRecord{
		Address:         address,
		DealDate:        dealDate,
		Price:           price,
		PropertyType:    optionalText(raw.PropertyType),
		RoomCount:       optionalFloat(raw.RoomCount),
		Area:            optionalFloat(raw.Area),
		SourcePageIndex: raw.SourcePageIndex,
		ScrapedAt:       time.Now(),
	}, nil
}

func cellText(row *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return collapseWhitespace(row.Find(selector).First().Text())
}

func parseDate(raw string) (time.Time, bool) {
	raw = collapseWhitespace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// parsePrice strips currency symbols and thousands separators.
// Examples: "₪1,500,000" → 1500000, "1,234.50 NIS" → 1234.5,
// "1,500,000.-" → 1500000. Negative amounts are rejected; a trailing
// dash or a range separator is not a sign.
func parsePrice(raw string) (float64, bool) {
	raw = collapseWhitespace(raw)
	if raw == "" {
		return 0, false
	}

	loc := amountRegexp.FindStringIndex(raw)
	if loc == nil {
		return 0, false
	}
	if negated(raw[:loc[0]]) {
		return 0, false
	}

	match := raw[loc[0]:loc[1]]
	val, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", ""), 64)
	if err != nil || val < 0 {
		return 0, false
	}
	return val, true
}

// negated reports whether the text directly before an amount ends in a
// minus sign, ignoring intervening spaces ("₪-500", "- 500").
func negated(prefix string) bool {
	trimmed := strings.TrimRight(prefix, " ")
	return strings.HasSuffix(trimmed, "-")
}

func optionalText(raw string) *string {
	s := collapseWhitespace(raw)
	if s == "" {
		return nil
	}
	return &s
}

func optionalFloat(raw string) *float64 {
	match := floatRegexp.FindString(collapseWhitespace(raw))
	if match == "" {
		return nil
	}
	val, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return nil
	}
	return &val
}

// collapseWhitespace strips leading/trailing whitespace and collapses
// internal runs, including non-breaking spaces the portal pads cells with.
func collapseWhitespace(s string) string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	return strings.Join(fields, " ")
}
