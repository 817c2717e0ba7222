package interfaces

import (
	"github.com/ternarybob/messis/internal/models"
)

// PageParser is the pluggable field-extraction contract between the harvest
// pipeline and one catalog's markup. The traversal engine and harvester only
// ever talk to this interface, so swapping target layouts means swapping
// parsers, not pipeline code.
type PageParser interface {
	// ExtractState returns the hidden state fields the server requires on
	// the next postback. It fails with models.ErrMalformedResponse when any
	// critical field is absent; non-critical hidden fields are carried
	// opaquely and missing ones are ignored.
	ExtractState(body []byte) (models.StateToken, error)

	// Identifiers returns the catalog identifiers present on a result page.
	// An empty page is valid and yields nil.
	Identifiers(body []byte) []models.Identifier

	// NextPageTarget returns the event target of the enabled next-page
	// control, or ok=false when no further pages are signaled. The absence
	// of the control is the only "no more pages" signal; there is no fixed
	// page count.
	NextPageTarget(body []byte) (target string, ok bool)

	// SelectTarget returns the event target of the detail link on a result
	// page, or ok=false when the page carries no selectable record.
	SelectTarget(body []byte) (target string, ok bool)

	// DetailRecord parses a detail page into the record for id. Absent
	// field values are not errors; the identifier itself is always set.
	DetailRecord(body []byte, id models.Identifier) (models.Record, error)
}
