// Package catalogtest provides an in-process fake of a form-state catalog
// server for pipeline tests: hidden-field round-tripping, cookie sessions,
// postback pagination and detail pages, with failure injection.
package catalogtest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/ternarybob/messis/internal/common"
	"github.com/ternarybob/messis/internal/models"
)

// PageSize is how many identifiers the fake serves per result page.
const PageSize = 2

// Server simulates the catalog: every response issues a fresh state value
// that the next postback must echo, keyed to the visitor's session cookie.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	records  map[models.Identifier]map[string]string
	byTerm   map[string][]models.Identifier
	sessions map[string]*session
	nextID   int

	// FailNext makes the next n requests answer 502 before any handling.
	FailNext int
	// FailAfter, when positive, makes every request after the first n
	// answer 502. Simulates a catalog going down mid-traversal.
	FailAfter int
	// FailLookups makes the first n detail-chain requests for an
	// identifier answer 502. Keyed by identifier, decremented per failure.
	FailLookups map[models.Identifier]int
	// Requests counts every request served, including injected failures.
	Requests int
}

type session struct {
	state   string
	term    string
	page    int
	lookup  models.Identifier
	counter int
}

// New starts a fake catalog with the given per-term result sets. Record
// fields for detail pages are derived from the identifier.
func New(byTerm map[string][]models.Identifier) *Server {
	s := &Server{
		records:     make(map[models.Identifier]map[string]string),
		byTerm:      byTerm,
		sessions:    make(map[string]*session),
		FailLookups: make(map[models.Identifier]int),
	}
	for _, ids := range byTerm {
		for _, id := range ids {
			s.records[id] = map[string]string{
				"Name":   "RECORD " + string(id),
				"Status": "ACTIVE",
			}
		}
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// Config returns a pipeline configuration pointed at this fake.
func (s *Server) Config() common.CatalogConfig {
	return common.CatalogConfig{
		BaseURL:         s.URL + "/search.aspx",
		DetailsURL:      s.URL + "/search.aspx",
		SearchField:     "txtLastName",
		IdentifierField: "txtKey",
		SubmitField:     "btnSearch",
		SubmitValue:     "Search",
		CriticalStateFields: []string{
			"__VIEWSTATE",
			"__VIEWSTATEGENERATOR",
			"__EVENTVALIDATION",
		},
		ResultsSelector:      "table#gvResults",
		NextPageNameContains: "btnNext",
		SelectLinkSelector:   "a.lnkRecordName",
		DetailTableSelectors: []string{"table#tblDetail"},
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Requests++
	if s.FailNext > 0 {
		s.FailNext--
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	if s.FailAfter > 0 && s.Requests > s.FailAfter {
		w.WriteHeader(http.StatusBadGateway)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleLanding(w)
	case http.MethodPost:
		s.handlePostback(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleLanding(w http.ResponseWriter) {
	s.nextID++
	key := fmt.Sprintf("sess-%d", s.nextID)
	sess := &session{}
	s.sessions[key] = sess

	http.SetCookie(w, &http.Cookie{Name: "ASP.NET_SessionId", Value: key})
	s.writePage(w, sess, "<p>Enter a search.</p>")
}

func (s *Server) handlePostback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie("ASP.NET_SessionId")
	if err != nil {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	sess, ok := s.sessions[cookie.Value]
	if !ok {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	// A postback carrying anything but the most recently issued state is
	// a client sequencing bug; real servers reset or reject it.
	if r.PostForm.Get("__VIEWSTATE") != sess.state {
		w.WriteHeader(http.StatusConflict)
		return
	}

	target := r.PostForm.Get("__EVENTTARGET")
	switch {
	case target == "" && r.PostForm.Get("txtKey") != "":
		id := models.Identifier(r.PostForm.Get("txtKey"))
		if s.failLookup(w, id) {
			return
		}
		sess.lookup = id
		s.writeLookupResult(w, sess, id)

	case target == "":
		sess.term = r.PostForm.Get("txtLastName")
		sess.page = 0
		s.writeResults(w, sess)

	case strings.Contains(target, "btnNext"):
		sess.page++
		s.writeResults(w, sess)

	case strings.Contains(target, "lnkRecordName"):
		if s.failLookup(w, sess.lookup) {
			return
		}
		s.writeDetail(w, sess, sess.lookup)

	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func (s *Server) failLookup(w http.ResponseWriter, id models.Identifier) bool {
	if s.FailLookups[id] > 0 {
		s.FailLookups[id]--
		w.WriteHeader(http.StatusBadGateway)
		return true
	}
	return false
}

func (s *Server) writeResults(w http.ResponseWriter, sess *session) {
	ids := s.byTerm[sess.term]
	start := sess.page * PageSize
	if start > len(ids) {
		start = len(ids)
	}
	end := start + PageSize
	if end > len(ids) {
		end = len(ids)
	}

	var b strings.Builder
	b.WriteString(`<table id="gvResults"><tr><th>Key</th><th>Name</th></tr>`)
	for _, id := range ids[start:end] {
		fmt.Fprintf(&b, `<tr><td>%s</td><td>%s</td></tr>`, id, s.records[id]["Name"])
	}
	b.WriteString(`</table>`)

	if end < len(ids) {
		b.WriteString(`<input type="submit" name="ctl00$MainContent$btnNext" value="Next" />`)
	} else {
		b.WriteString(`<input type="submit" name="ctl00$MainContent$btnNext" value="Next" disabled="disabled" />`)
	}

	s.writePage(w, sess, b.String())
}

func (s *Server) writeLookupResult(w http.ResponseWriter, sess *session, id models.Identifier) {
	var b strings.Builder
	b.WriteString(`<table id="gvResults"><tr><th>Key</th><th>Name</th></tr>`)
	if _, ok := s.records[id]; ok {
		fmt.Fprintf(&b,
			`<tr><td>%s</td><td><a class="lnkRecordName" href="javascript:__doPostBack('ctl00$gvResults$ctl02$lnkRecordName','')">%s</a></td></tr>`,
			id, s.records[id]["Name"])
	}
	b.WriteString(`</table>`)
	s.writePage(w, sess, b.String())
}

func (s *Server) writeDetail(w http.ResponseWriter, sess *session, id models.Identifier) {
	var b strings.Builder
	b.WriteString(`<table id="tblDetail">`)
	fmt.Fprintf(&b, `<tr><td>Key:</td><td>%s</td></tr>`, id)
	for _, label := range []string{"Name", "Status"} {
		fmt.Fprintf(&b, `<tr><td>%s:</td><td>%s</td></tr>`, label, s.records[id][label])
	}
	b.WriteString(`</table>`)
	s.writePage(w, sess, b.String())
}

// writePage wraps content with a fresh set of hidden state fields.
func (s *Server) writePage(w http.ResponseWriter, sess *session, content string) {
	sess.counter++
	sess.state = fmt.Sprintf("vs-%d", sess.counter)

	fmt.Fprintf(w, `<html><body><form method="post" action="./search.aspx">
<input type="hidden" name="__VIEWSTATE" value="%s" />
<input type="hidden" name="__VIEWSTATEGENERATOR" value="CA0B0334" />
<input type="hidden" name="__EVENTVALIDATION" value="ev-%d" />
%s
</form></body></html>`, sess.state, sess.counter, content)
}
