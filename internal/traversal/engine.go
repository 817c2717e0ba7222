package traversal

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/messis/internal/common"
	"github.com/ternarybob/messis/internal/interfaces"
	"github.com/ternarybob/messis/internal/models"
	"github.com/ternarybob/messis/internal/postback"
)

// Engine runs complete search-term traversals: landing page, search
// postback, then pagination postbacks until the catalog stops offering a
// next page. Requests within a traversal are strictly sequential because
// each response's token set is required to build the next postback.
//
// One Engine is shared across traversal workers; each Run gets its own
// Session (cookie jar) and Builder (token sequencing).
type Engine struct {
	catalog common.CatalogConfig
	http    common.HTTPConfig
	parser  interfaces.PageParser
	limiter *rate.Limiter

	maxConsecutiveFailures int
	backoff                *RetryPolicy
	logger                 arbor.ILogger
}

// NewEngine creates a traversal engine from the pipeline configuration.
func NewEngine(config *common.Config, parser interfaces.PageParser, limiter *rate.Limiter, logger arbor.ILogger) *Engine {
	maxFails := config.Discovery.MaxConsecutiveFailures
	if maxFails < 1 {
		maxFails = 1
	}

	return &Engine{
		catalog:                config.Catalog,
		http:                   config.HTTP,
		parser:                 parser,
		limiter:                limiter,
		maxConsecutiveFailures: maxFails,
		backoff:                RetryPolicyFromConfig(config.Harvest),
		logger:                 logger,
	}
}

// Run executes one traversal for the given search term. Identifiers
// accumulated before a failure are retained in the result.
func (e *Engine) Run(ctx context.Context, term string) models.TraversalResult {
	start := time.Now()

	state := &models.TraversalState{
		Term:  term,
		Phase: models.TraversalInit,
	}

	result := func(err error) models.TraversalResult {
		if err != nil {
			state.Phase = models.TraversalFailed
		}
		return models.TraversalResult{
			Term:        term,
			Phase:       state.Phase,
			Pages:       state.Page,
			Identifiers: state.Identifiers,
			Err:         err,
			Duration:    time.Since(start),
		}
	}

	session, err := postback.NewSession(e.http, e.limiter)
	if err != nil {
		return result(err)
	}

	run := &traversalRun{
		engine:  e,
		session: session,
		builder: postback.NewBuilder(e.catalog),
		state:   state,
		seen:    models.IdentifierSet{},
	}

	e.logger.Debug().Str("term", term).Msg("Starting traversal")

	if err := run.execute(ctx); err != nil {
		e.logger.Warn().
			Str("term", term).
			Int("pages", state.Page).
			Int("identifiers", len(state.Identifiers)).
			Err(err).
			Msg("Traversal failed, partial results retained")
		return result(err)
	}

	e.logger.Info().
		Str("term", term).
		Int("pages", state.Page).
		Int("identifiers", len(state.Identifiers)).
		Msg("Traversal complete")

	return result(nil)
}

// traversalRun is the mutable context of one Run call.
type traversalRun struct {
	engine  *Engine
	session *postback.Session
	builder *postback.Builder
	state   *models.TraversalState

	seen     models.IdentifierSet
	seq      uint64
	failures int
}

func (r *traversalRun) execute(ctx context.Context) error {
	e := r.engine

	// Landing page establishes the session cookie and the first token set.
	body, err := r.attempt(ctx, func() ([]byte, error) {
		return r.session.GetPage(ctx, e.catalog.BaseURL)
	})
	if err != nil {
		return err
	}

	r.state.Phase = models.TraversalSearching

	form, err := r.builder.Build(models.SearchAction(r.state.Term), r.state.Token)
	if err != nil {
		return err
	}
	body, err = r.attempt(ctx, func() ([]byte, error) {
		return r.session.PostForm(ctx, e.catalog.BaseURL, form)
	})
	if err != nil {
		return err
	}

	r.collect(body)
	r.state.Page = 1
	r.state.Phase = models.TraversalPaginating

	for {
		target, ok := e.parser.NextPageTarget(body)
		if !ok {
			break
		}

		form, err := r.builder.Build(models.NextPageAction(target), r.state.Token)
		if err != nil {
			return err
		}
		body, err = r.attempt(ctx, func() ([]byte, error) {
			return r.session.PostForm(ctx, e.catalog.BaseURL, form)
		})
		if err != nil {
			return err
		}

		added := r.collect(body)
		r.state.Page++

		// A page that adds nothing while still advertising a next page
		// means the server is re-serving the same page; stop instead of
		// looping forever.
		if added == 0 {
			if _, still := e.parser.NextPageTarget(body); still {
				e.logger.Warn().
					Str("term", r.state.Term).
					Int("page", r.state.Page).
					Msg("Pagination stalled, ending traversal")
				break
			}
		}
	}

	r.state.Phase = models.TraversalDone
	return nil
}

// attempt performs one logical step, counting consecutive failures across
// the whole traversal and resetting on success. The fresh token set is
// stamped with the next sequence number and stored on the state.
func (r *traversalRun) attempt(ctx context.Context, fetch func() ([]byte, error)) ([]byte, error) {
	for {
		body, err := fetch()
		if err == nil {
			var token models.StateToken
			token, err = r.engine.parser.ExtractState(body)
			if err == nil {
				r.failures = 0
				r.seq++
				r.state.Token = token.WithSeq(r.seq)
				return body, nil
			}
		}

		if !IsRetryable(err) {
			return nil, err
		}

		r.failures++
		if r.failures >= r.engine.maxConsecutiveFailures {
			return nil, err
		}

		backoff := r.engine.backoff.CalculateBackoff(r.failures - 1)
		r.engine.logger.Debug().
			Str("term", r.state.Term).
			Int("consecutive_failures", r.failures).
			Dur("backoff", backoff).
			Err(err).
			Msg("Traversal step failed, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// collect merges the page's identifiers into the traversal, returning how
// many were new. Duplicates across pages are expected and ignored.
func (r *traversalRun) collect(body []byte) int {
	added := 0
	for _, id := range r.engine.parser.Identifiers(body) {
		if r.seen.Add(id) {
			r.state.Identifiers = append(r.state.Identifiers, id)
			added++
		}
	}
	return added
}
