package catalog

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/messis/internal/common"
	"github.com/ternarybob/messis/internal/interfaces"
	"github.com/ternarybob/messis/internal/models"
)

// Parser implements interfaces.PageParser for form-state catalogs: hidden
// state inputs on every page, a result grid whose first cell carries the
// identifier, and postback-driven pagination and record selection. All
// markup knowledge comes from CatalogConfig.
type Parser struct {
	config common.CatalogConfig
}

var _ interfaces.PageParser = (*Parser)(nil)

// NewParser creates a parser bound to one catalog's selectors.
func NewParser(config common.CatalogConfig) *Parser {
	return &Parser{config: config}
}

// ExtractState collects every hidden input on the page. Critical fields
// must be present; other hidden fields are carried opaquely so the next
// postback round-trips them byte-for-byte.
func (p *Parser) ExtractState(body []byte) (models.StateToken, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return models.StateToken{}, fmt.Errorf("%w: %v", models.ErrMalformedResponse, err)
	}

	fields := make(map[string]string)
	doc.Find("input[type=hidden]").Each(func(_ int, sel *goquery.Selection) {
		name, ok := sel.Attr("name")
		if !ok || name == "" {
			return
		}
		fields[name] = sel.AttrOr("value", "")
	})

	for _, critical := range p.config.CriticalStateFields {
		if _, ok := fields[critical]; !ok {
			return models.StateToken{}, fmt.Errorf("%w: missing %s", models.ErrMalformedResponse, critical)
		}
	}

	return models.StateToken{Fields: fields}, nil
}

// Identifiers scans the result grid and returns the key from the first cell
// of each data row. A page without the grid is a valid empty page.
func (p *Parser) Identifiers(body []byte) []models.Identifier {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	var ids []models.Identifier
	doc.Find(p.config.ResultsSelector).Find("tr").Each(func(_ int, row *goquery.Selection) {
		cell := row.Find("td").First()
		if cell.Length() == 0 {
			return // header row
		}
		key := strings.TrimSpace(cell.Text())
		if key == "" {
			return
		}
		ids = append(ids, models.Identifier(key))
	})

	return ids
}

// NextPageTarget finds the enabled next-page control. A disabled or absent
// control is the catalog's only "no more pages" signal.
func (p *Parser) NextPageTarget(body []byte) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", false
	}

	selector := fmt.Sprintf("input[name*='%s']", p.config.NextPageNameContains)
	control := doc.Find(selector).First()
	if control.Length() == 0 {
		return "", false
	}
	if _, disabled := control.Attr("disabled"); disabled {
		return "", false
	}

	name, ok := control.Attr("name")
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

// SelectTarget finds the detail postback link on a result page and extracts
// its event target from the javascript href.
func (p *Parser) SelectTarget(body []byte) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", false
	}

	link := doc.Find(p.config.SelectLinkSelector).First()
	if link.Length() == 0 {
		return "", false
	}

	// href is of the form javascript:__doPostBack('target','argument')
	href := link.AttrOr("href", "")
	target := quotedSegment(href)
	if target == "" {
		return "", false
	}
	return target, true
}

// DetailRecord merges the configured label/value tables on a detail page
// into one record. Absent tables and empty values are not errors.
func (p *Parser) DetailRecord(body []byte, id models.Identifier) (models.Record, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return models.Record{}, fmt.Errorf("%w: %v", models.ErrMalformedResponse, err)
	}

	rec := models.Record{
		ID:     id,
		Fields: make(map[string]string),
	}

	for _, selector := range p.config.DetailTableSelectors {
		doc.Find(selector).Find("tr").Each(func(_ int, row *goquery.Selection) {
			cells := row.Find("td")
			if cells.Length() != 2 {
				return
			}
			key := strings.TrimSuffix(strings.TrimSpace(cells.First().Text()), ":")
			if key == "" {
				return
			}
			rec.Fields[key] = strings.TrimSpace(cells.Last().Text())
		})
	}

	return rec, nil
}

// quotedSegment returns the first single-quoted substring of s.
func quotedSegment(s string) string {
	start := strings.IndexByte(s, '\'')
	if start < 0 {
		return ""
	}
	end := strings.IndexByte(s[start+1:], '\'')
	if end < 0 {
		return ""
	}
	return s[start+1 : start+1+end]
}
