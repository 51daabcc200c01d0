// Package controller coordinates rapid user input against the search backend:
// it debounces suggestion lookups, gates searches and drops stale responses.
package controller

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gmaxsoft/elasticsearch-project/internal/domain"
)

const (
	// DefaultDebounce is the quiet period before a suggestion lookup.
	DefaultDebounce = 300 * time.Millisecond
	// DefaultRequestTimeout bounds each backend call.
	DefaultRequestTimeout = 10 * time.Second
	// MinSuggestRunes is the shortest trimmed query that triggers suggestions.
	MinSuggestRunes = 2
	// SearchErrorMessage is shown when a search fails.
	SearchErrorMessage = "Search failed. Please try again."
)

// Backend is the search API the controller talks to.
type Backend interface {
	Search(ctx context.Context, query string) ([]domain.Product, error)
	Suggest(ctx context.Context, query string) ([]string, error)
}

// Option configures a Controller.
type Option func(*Controller)

// WithScheduler replaces the wall-clock scheduler.
func WithScheduler(s Scheduler) Option {
	return func(c *Controller) { c.scheduler = s }
}

// WithDebounce sets the suggestion debounce interval.
func WithDebounce(d time.Duration) Option {
	return func(c *Controller) { c.debounce = d }
}

// WithRequestTimeout sets the timeout applied to each backend call.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Controller) { c.timeout = d }
}

// Controller holds the state of one interactive client session.
// All mutations happen under mu; backend calls run on their own goroutines.
type Controller struct {
	backend   Backend
	scheduler Scheduler
	debounce  time.Duration
	timeout   time.Duration
	logger    *slog.Logger

	mu         sync.Mutex
	state      State
	timer      Timer
	suggestGen uint64
	searchGen  uint64
	searching  bool
	onChange   func(State)

	// notifyMu orders OnChange deliveries. delivered is the newest version
	// handed to onChange.
	notifyMu  sync.Mutex
	delivered uint64

	inflight sync.WaitGroup
}

// New creates a controller in the idle state.
func New(backend Backend, logger *slog.Logger, opts ...Option) *Controller {
	c := &Controller{
		backend:   backend,
		scheduler: RealScheduler{},
		debounce:  DefaultDebounce,
		timeout:   DefaultRequestTimeout,
		logger:    logger,
		state:     State{SearchEnabled: true},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnChange registers fn to receive a snapshot after every state change.
// fn is called outside the controller lock, one call at a time, and never
// with a snapshot older than one it has already received. fn may call State
// but must not call the On* methods.
func (c *Controller) OnChange(fn func(State)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// State returns a snapshot of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Wait blocks until every in-flight backend call has been applied or discarded.
func (c *Controller) Wait() {
	c.inflight.Wait()
}

// Close cancels any armed debounce timer.
func (c *Controller) Close() {
	c.mu.Lock()
	c.suggestGen++
	c.stopTimerLocked()
	c.mu.Unlock()
}

// OnQueryTextChange records new input text. Queries of at least
// MinSuggestRunes runes after trimming arm a debounced suggestion lookup;
// shorter ones hide suggestions without contacting the backend.
func (c *Controller) OnQueryTextChange(text string) {
	c.mu.Lock()
	c.state.QueryText = text
	c.suggestGen++
	c.stopTimerLocked()

	if utf8.RuneCountInString(strings.TrimSpace(text)) >= MinSuggestRunes {
		gen := c.suggestGen
		c.timer = c.scheduler.AfterFunc(c.debounce, func() { c.fireSuggest(gen) })
	} else {
		c.state.Suggestions = nil
		c.state.SuggestionState = SuggestionHidden
	}
	c.unlockAndNotify()
}

// OnSearchTriggered starts a search for the current text. It does nothing
// when the text is blank or a search request is still in flight, including
// one whose response will be discarded.
func (c *Controller) OnSearchTriggered() {
	c.mu.Lock()
	query := strings.TrimSpace(c.state.QueryText)
	if query == "" || c.searching {
		c.mu.Unlock()
		return
	}

	c.suggestGen++
	c.stopTimerLocked()
	c.state.SuggestionState = SuggestionHidden

	c.searchGen++
	gen := c.searchGen
	c.searching = true
	c.state.SearchState = SearchPending
	c.state.SearchEnabled = false
	c.state.Error = ""

	c.inflight.Add(1)
	c.unlockAndNotify()
	go c.runSearch(gen, query)
}

// OnSuggestionSelected replaces the query text with the chosen suggestion,
// hides the list and clears results. No search is started. A search still in
// flight is discarded when it returns, and searching stays disabled until then.
func (c *Controller) OnSuggestionSelected(text string) {
	c.mu.Lock()
	c.suggestGen++
	c.stopTimerLocked()
	c.searchGen++

	c.state.QueryText = text
	c.state.SuggestionState = SuggestionHidden
	c.state.Results = nil
	c.state.Error = ""
	c.state.SearchState = SearchIdle
	c.state.SearchEnabled = !c.searching
	c.unlockAndNotify()
}

func (c *Controller) fireSuggest(gen uint64) {
	c.mu.Lock()
	if gen != c.suggestGen {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	query := strings.TrimSpace(c.state.QueryText)
	c.state.SuggestionState = SuggestionPending

	c.inflight.Add(1)
	c.unlockAndNotify()
	go c.runSuggest(gen, query)
}

func (c *Controller) runSuggest(gen uint64, query string) {
	defer c.inflight.Done()

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	titles, err := c.backend.Suggest(ctx, query)

	c.mu.Lock()
	if gen != c.suggestGen {
		c.mu.Unlock()
		c.logger.Debug("discarding stale suggestions", slog.String("query", query))
		return
	}
	if err != nil {
		c.logger.Warn("suggestion lookup failed",
			slog.String("query", query),
			slog.String("error", err.Error()),
		)
		c.state.Suggestions = nil
		c.state.SuggestionState = SuggestionHidden
		c.unlockAndNotify()
		return
	}
	if titles == nil {
		titles = []string{}
	}
	c.state.Suggestions = titles
	c.state.SuggestionState = SuggestionShown
	c.unlockAndNotify()
}

func (c *Controller) runSearch(gen uint64, query string) {
	defer c.inflight.Done()

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	products, err := c.backend.Search(ctx, query)

	c.mu.Lock()
	c.searching = false
	c.state.SearchEnabled = true
	if gen != c.searchGen {
		c.logger.Debug("discarding stale search results", slog.String("query", query))
		c.unlockAndNotify()
		return
	}
	if err != nil {
		c.logger.Warn("search failed",
			slog.String("query", query),
			slog.String("error", err.Error()),
		)
		c.state.SearchState = SearchFailed
		c.state.Results = nil
		c.state.Error = SearchErrorMessage
		c.unlockAndNotify()
		return
	}
	if products == nil {
		products = []domain.Product{}
	}
	c.state.SearchState = SearchDone
	c.state.Results = products
	c.unlockAndNotify()
}

func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// unlockAndNotify stamps a new version, releases mu and publishes the
// snapshot. A snapshot overtaken by a newer delivery is dropped.
func (c *Controller) unlockAndNotify() {
	c.state.Version++
	snap := c.state.clone()
	fn := c.onChange
	c.mu.Unlock()
	if fn == nil {
		return
	}

	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if snap.Version <= c.delivered {
		return
	}
	c.delivered = snap.Version
	fn(snap)
}
