package models

// ActionKind identifies which virtual control a postback activates.
type ActionKind int

const (
	ActionSearch ActionKind = iota
	ActionLookup
	ActionNextPage
	ActionSelectRecord
)

// String returns the action kind name for logging.
func (k ActionKind) String() string {
	switch k {
	case ActionSearch:
		return "search"
	case ActionLookup:
		return "lookup"
	case ActionNextPage:
		return "next_page"
	case ActionSelectRecord:
		return "select_record"
	default:
		return "unknown"
	}
}

// Action is a logical catalog operation to be translated into a postback
// payload. Search carries the term typed into the search field; NextPage and
// SelectRecord carry the event-target identifier of the control that fires
// the postback.
type Action struct {
	Kind   ActionKind
	Term   string
	Target string
}

// SearchAction submits the given term through the catalog search form.
func SearchAction(term string) Action {
	return Action{Kind: ActionSearch, Term: term}
}

// LookupAction submits a known identifier through the identifier field to
// pull up a single record's result row.
func LookupAction(id Identifier) Action {
	return Action{Kind: ActionLookup, Term: string(id)}
}

// NextPageAction activates the pagination control with the given event target.
func NextPageAction(target string) Action {
	return Action{Kind: ActionNextPage, Target: target}
}

// SelectRecordAction activates the detail link with the given event target.
func SelectRecordAction(target string) Action {
	return Action{Kind: ActionSelectRecord, Target: target}
}
