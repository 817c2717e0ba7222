package postback

import (
	"fmt"
	"net/url"
	"sync"

	"github.com/ternarybob/messis/internal/common"
	"github.com/ternarybob/messis/internal/models"
)

// Event wiring fields understood by form-state servers. The target names
// the virtual control that "clicked"; the argument is unused by the
// catalogs this pipeline targets but must still be present.
const (
	eventTargetField   = "__EVENTTARGET"
	eventArgumentField = "__EVENTARGUMENT"
)

// Builder translates logical actions into postback form payloads. It echoes
// the full token field set back unchanged and enforces token freshness: a
// token older than the last one it consumed is refused with ErrStaleToken,
// so an out-of-order extract/build bug surfaces immediately instead of as a
// silent server-side state reset.
//
// One Builder serves one traversal session and is safe for concurrent use,
// though a correctly sequenced traversal never needs that.
type Builder struct {
	config common.CatalogConfig

	mu       sync.Mutex
	consumed bool
	lastSeq  uint64
}

// NewBuilder creates a builder for one traversal session.
func NewBuilder(config common.CatalogConfig) *Builder {
	return &Builder{config: config}
}

// Build produces the form payload for the given action using the given
// token set. Every field of the token is round-tripped verbatim; the
// action only adds the search term or event wiring on top.
func (b *Builder) Build(action models.Action, token models.StateToken) (url.Values, error) {
	if token.IsZero() {
		return nil, fmt.Errorf("%w: %s postback requested before any extraction", models.ErrMissingToken, action.Kind)
	}

	if err := b.consume(token); err != nil {
		return nil, fmt.Errorf("%s postback: %w", action.Kind, err)
	}

	form := url.Values{}
	for name, value := range token.Fields {
		form.Set(name, value)
	}

	switch action.Kind {
	case models.ActionSearch:
		form.Set(eventTargetField, "")
		form.Set(eventArgumentField, "")
		form.Set(b.config.SearchField, action.Term)
		if b.config.SubmitField != "" {
			form.Set(b.config.SubmitField, b.config.SubmitValue)
		}

	case models.ActionLookup:
		form.Set(eventTargetField, "")
		form.Set(eventArgumentField, "")
		form.Set(b.config.IdentifierField, action.Term)
		if b.config.SubmitField != "" {
			form.Set(b.config.SubmitField, b.config.SubmitValue)
		}

	case models.ActionNextPage, models.ActionSelectRecord:
		if action.Target == "" {
			return nil, fmt.Errorf("%s postback: empty event target", action.Kind)
		}
		// Event-driven postbacks fire through the hidden event fields;
		// submit buttons must not also appear in the payload.
		form.Set(eventTargetField, action.Target)
		form.Set(eventArgumentField, "")
		form.Del(b.config.SubmitField)

	default:
		return nil, fmt.Errorf("unknown action kind %d", action.Kind)
	}

	return form, nil
}

// consume records the token's sequence number and rejects anything at or
// below the last one used. Each token set is single-use.
func (b *Builder) consume(token models.StateToken) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.consumed && token.Seq <= b.lastSeq {
		return fmt.Errorf("%w: seq %d already superseded (last consumed %d)", models.ErrStaleToken, token.Seq, b.lastSeq)
	}
	b.consumed = true
	b.lastSeq = token.Seq
	return nil
}
