package services

import (
	"errors"
	"testing"

	log "github.com/sirupsen/logrus"

	"nadlan-scraper/config"
	"nadlan-scraper/models"
)

const fixtureHTML = `
<html><body>
<table class="deals-table"><tbody>
<tr>
  <td class="address">  הרצל 12,   באר שבע </td>
  <td class="deal-date">15/03/2024</td>
  <td class="price">₪1,500,000</td>
  <td class="property-type">דירה</td>
  <td class="rooms">3.5</td>
  <td class="area">85</td>
</tr>
<tr>
  <td class="address">בן גוריון 8</td>
  <td class="deal-date">16/03/2024</td>
  <td class="price">2,000,000</td>
  <td class="rooms"></td>
</tr>
<tr>
  <td class="deal-date">17/03/2024</td>
  <td class="price">₪900,000</td>
</tr>
<tr>
  <td class="address">מלכת שבא 3</td>
  <td class="deal-date">not a date</td>
  <td class="price">₪990,000</td>
</tr>
</tbody></table>
</body></html>`

func newTestExtractor() *Extractor {
	return NewExtractor(config.DefaultSelectors().Results, log.WithField("test", "extractor"))
}

func TestParseSkipsRowsWithoutAddress(t *testing.T) {
	e := newTestExtractor()

	rows, err := e.Parse(fixtureHTML, 2)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows with an address cell, got %d", len(rows))
	}
	for _, r := range rows {
		if r.SourcePageIndex != 2 {
			t.Errorf("row tagged with page %d, want 2", r.SourcePageIndex)
		}
	}
}

func TestNormalizeFullRow(t *testing.T) {
	e := newTestExtractor()

	rows, err := e.Parse(fixtureHTML, 1)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	rec, err := e.Normalize(rows[0])
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}

	if rec.Address != "הרצל 12, באר שבע" {
		t.Errorf("address not whitespace-collapsed: %q", rec.Address)
	}
	if got := rec.DealDate.Format("2006-01-02"); got != "2024-03-15" {
		t.Errorf("dealDate = %s; want 2024-03-15", got)
	}
	if rec.Price != 1500000 {
		t.Errorf("price = %.2f; want 1500000", rec.Price)
	}
	if rec.PropertyType == nil || *rec.PropertyType != "דירה" {
		t.Errorf("propertyType = %v; want דירה", rec.PropertyType)
	}
	if rec.RoomCount == nil || *rec.RoomCount != 3.5 {
		t.Errorf("roomCount = %v; want 3.5", rec.RoomCount)
	}
	if rec.Area == nil || *rec.Area != 85 {
		t.Errorf("area = %v; want 85", rec.Area)
	}
}

func TestNormalizeOptionalFieldsNilWhenAbsent(t *testing.T) {
	e := newTestExtractor()

	rows, err := e.Parse(fixtureHTML, 1)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	rec, err := e.Normalize(rows[1])
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if rec.PropertyType != nil {
		t.Errorf("propertyType = %v; want nil", *rec.PropertyType)
	}
	if rec.RoomCount != nil {
		t.Errorf("roomCount = %v; want nil", *rec.RoomCount)
	}
	if rec.Area != nil {
		t.Errorf("area = %v; want nil", *rec.Area)
	}
}

func TestNormalizeRowIsolation(t *testing.T) {
	e := newTestExtractor()

	rows, err := e.Parse(fixtureHTML, 1)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	var good, bad int
	for _, raw := range rows {
		if _, err := e.Normalize(raw); err != nil {
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("expected ValidationError, got %T: %v", err, err)
			}
			bad++
			continue
		}
		good++
	}

	if good != 2 || bad != 1 {
		t.Errorf("got %d valid / %d invalid rows; want 2/1", good, bad)
	}
}

func TestNormalizeBadDate(t *testing.T) {
	e := newTestExtractor()

	_, err := e.Normalize(models.RawTransaction{
		Address: "somewhere", DealDate: "32/13/2024", Price: "100",
	})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.Field != "dealDate" {
		t.Errorf("failed field = %s; want dealDate", ve.Field)
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
		ok   bool
	}{
		{"₪1,500,000", 1500000, true},
		{"1,234.50 NIS", 1234.50, true},
		{"2000000", 2000000, true},
		{" ₪ 750,000 ", 750000, true},
		{"", 0, false},
		{"N/A", 0, false},
		{"-500", 0, false},
		{"₪-500", 0, false},
		{"- 500", 0, false},
		{"1,500,000.-", 1500000, true},
		{"1,000 - 2,000", 1000, true},
	}

	for _, tt := range tests {
		got, ok := parsePrice(tt.raw)
		if ok != tt.ok || got != tt.want {
			t.Errorf("parsePrice(%q) = %.2f, %v; want %.2f, %v", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseDateLayouts(t *testing.T) {
	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"15/03/2024", "2024-03-15", true},
		{"15.03.2024", "2024-03-15", true},
		{"15-03-2024", "2024-03-15", true},
		{"2024-03-15", "2024-03-15", true},
		{"  15/03/2024  ", "2024-03-15", true},
		{"03/15/2024", "", false}, // month-first is not a portal format
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := parseDate(tt.raw)
		if ok != tt.ok {
			t.Errorf("parseDate(%q) ok = %v; want %v", tt.raw, ok, tt.ok)
			continue
		}
		if ok && got.Format("2006-01-02") != tt.want {
			t.Errorf("parseDate(%q) = %s; want %s", tt.raw, got.Format("2006-01-02"), tt.want)
		}
	}
}
