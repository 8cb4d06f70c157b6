package nadlan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/chromedp/chromedp"
	log "github.com/sirupsen/logrus"

	"nadlan-scraper/config"
	"nadlan-scraper/models"
)

// SearchOutcome is the result of submitting the portal's search form.
type SearchOutcome int

const (
	ResultsFound SearchOutcome = iota
	NoResults
)

// PageOutcome is the result of attempting to advance pagination.
type PageOutcome int

const (
	HasMore PageOutcome = iota
	Exhausted
)

// Navigator owns one live browser session against the portal for the
// duration of a single query. It is not safe for concurrent use; parallel
// runs each get their own Navigator.
type Navigator struct {
	cfg    *config.Config
	sel    config.NavSelectors
	logger *log.Entry

	browserCtx   context.Context
	cancelBrowse context.CancelFunc
	cancelAlloc  context.CancelFunc

	// advancePending is set once a next click fired but the new page has
	// not stabilized yet, so a retried NextPage resumes the wait instead
	// of clicking again and skipping a page.
	advancePending bool

	// Seams for the session-level steps, stubbed in tests.
	clickNext func(ctx context.Context) (bool, error)
	stabilize func(ctx context.Context) (SearchOutcome, error)
}

// NewNavigator creates a Navigator. The session is not started until Open.
func NewNavigator(cfg *config.Config, sel config.NavSelectors, logger *log.Entry) *Navigator {
	n := &Navigator{cfg: cfg, sel: sel, logger: logger}
	n.clickNext = n.clickNextControl
	n.stabilize = n.awaitResults
	return n
}

// Open launches a fresh headless browser and loads the portal's search page.
func (n *Navigator) Open(ctx context.Context) error {
	chromeBin := findChromeBinary(n.cfg.ChromeBin)
	n.logger.Debugf("using browser binary: %s", chromeBin)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", n.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("lang", "he-IL"),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 "+
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelBrowse := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(string, ...interface{}) {}))

	n.browserCtx = browserCtx
	n.cancelBrowse = cancelBrowse
	n.cancelAlloc = cancelAlloc

	stepCtx, cancel := context.WithTimeout(browserCtx, n.cfg.NavTimeout)
	defer cancel()

	err := chromedp.Run(stepCtx,
		chromedp.Navigate(n.cfg.PortalURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		n.Close()
		return &SessionError{Op: "open", Err: err, Permanent: !isDeadline(err)}
	}

	n.logger.Debug("session opened")
	return nil
}

// Search fills and submits the search form, then waits until the results
// container has stopped mutating or a no-results indicator shows up.
func (n *Navigator) Search(ctx context.Context, q models.Query) (SearchOutcome, error) {
	if n.browserCtx == nil {
		return NoResults, &SessionError{Op: "search", Err: errors.New("session not open"), Permanent: true}
	}

	stepCtx, cancel := n.stepContext(ctx)
	defer cancel()

	start := q.StartDate.Format("02/01/2006")
	end := q.EndDate.Format("02/01/2006")

	// Fields are written through the DOM, replacing any previous value, so
	// a retried Search resubmits the same query instead of appending to it.
	err := chromedp.Run(stepCtx,
		chromedp.WaitVisible(n.sel.CityInput, chromedp.ByQuery),
		fillField(n.sel.CityInput, q.City),
		fillField(n.sel.StartDateInput, start),
		fillField(n.sel.EndDateInput, end),
		chromedp.Click(n.sel.SearchButton, chromedp.ByQuery),
	)
	if err != nil {
		var se *SessionError
		if errors.As(err, &se) {
			return NoResults, se
		}
		if isDeadline(err) {
			return NoResults, &NavigationTimeout{Wait: "search form", Elapsed: n.cfg.NavTimeout.String()}
		}
		return NoResults, &SessionError{Op: "search", Err: err}
	}

	return n.stabilize(stepCtx)
}

// NextPage advances pagination if a next control is present and enabled,
// waiting for the new page to stabilize before returning.
func (n *Navigator) NextPage(ctx context.Context) (PageOutcome, error) {
	if n.browserCtx == nil {
		return Exhausted, &SessionError{Op: "next-page", Err: errors.New("session not open"), Permanent: true}
	}

	stepCtx, cancel := n.stepContext(ctx)
	defer cancel()

	// Only click if no advance is already in flight: a retried NextPage
	// must resume the stabilization wait, not fire a second click that
	// would skip a page of results.
	if !n.advancePending {
		clicked, err := n.clickNext(stepCtx)
		if err != nil {
			if isDeadline(err) {
				return Exhausted, &NavigationTimeout{Wait: "next control", Elapsed: n.cfg.NavTimeout.String()}
			}
			return Exhausted, &SessionError{Op: "next-page", Err: err}
		}
		if !clicked {
			return Exhausted, nil
		}
		n.advancePending = true
	}

	if _, err := n.stabilize(stepCtx); err != nil {
		return Exhausted, err
	}
	n.advancePending = false
	return HasMore, nil
}

// clickNextControl fires the portal's next control if it is present and
// enabled, reporting whether a click happened.
func (n *Navigator) clickNextControl(ctx context.Context) (bool, error) {
	var clicked bool
	err := chromedp.Run(ctx, chromedp.Evaluate(fmt.Sprintf(`
		(function() {
			var btn = document.querySelector(%q);
			if (!btn) return false;
			if (btn.disabled || btn.getAttribute('aria-disabled') === 'true' ||
				btn.classList.contains('disabled')) {
				return false;
			}
			btn.click();
			return true;
		})()
	`, n.sel.NextButton), &clicked))
	return clicked, err
}

// CurrentHTML returns the fully rendered markup of the current results page.
// Callers only see it after a quiescence wait, never mid-render.
func (n *Navigator) CurrentHTML(ctx context.Context) (string, error) {
	if n.browserCtx == nil {
		return "", &SessionError{Op: "current-html", Err: errors.New("session not open"), Permanent: true}
	}

	stepCtx, cancel := n.stepContext(ctx)
	defer cancel()

	var html string
	err := chromedp.Run(stepCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	if err != nil {
		if isDeadline(err) {
			return "", &NavigationTimeout{Wait: "page markup", Elapsed: n.cfg.NavTimeout.String()}
		}
		return "", &SessionError{Op: "current-html", Err: err}
	}
	return html, nil
}

// Close releases the browser session. Safe to call more than once and on
// every exit path.
func (n *Navigator) Close() {
	if n.cancelBrowse != nil {
		n.cancelBrowse()
		n.cancelBrowse = nil
	}
	if n.cancelAlloc != nil {
		n.cancelAlloc()
		n.cancelAlloc = nil
	}
	n.browserCtx = nil
}

// awaitResults polls the results container until its content is unchanged
// for a full quiescence window. A fixed sleep would either cut renders short
// or waste the wait, so readiness is an explicit predicate instead.
func (n *Navigator) awaitResults(ctx context.Context) (SearchOutcome, error) {
	snapshotJS := fmt.Sprintf(`
		(function() {
			if (document.querySelector(%q)) return -1;
			var c = document.querySelector(%q);
			if (!c) return -2;
			return c.innerHTML.length;
		})()
	`, n.sel.NoResults, n.sel.ResultsContainer)

	started := time.Now()
	var lastLen int = -2
	lastChange := started

	ticker := time.NewTicker(n.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return NoResults, &NavigationTimeout{
					Wait:    "results quiescence",
					Elapsed: time.Since(started).Round(time.Millisecond).String(),
				}
			}
			return NoResults, ctx.Err()
		case <-ticker.C:
		}

		var length int
		if err := chromedp.Run(ctx, chromedp.Evaluate(snapshotJS, &length)); err != nil {
			if isDeadline(err) {
				return NoResults, &NavigationTimeout{
					Wait:    "results quiescence",
					Elapsed: time.Since(started).Round(time.Millisecond).String(),
				}
			}
			return NoResults, &SessionError{Op: "await-results", Err: err}
		}

		if length == -1 {
			n.logger.Debug("no-results indicator present")
			return NoResults, nil
		}

		if length != lastLen {
			lastLen = length
			lastChange = time.Now()
			continue
		}

		// Container exists and has been stable for the full window.
		if length >= 0 && time.Since(lastChange) >= n.cfg.QuiescenceWindow {
			n.logger.Debugf("results stable after %s", time.Since(started).Round(time.Millisecond))
			return ResultsFound, nil
		}
	}
}

// fillField writes a value through the DOM and fires the events the
// portal's scripts listen for. SendKeys is unreliable on masked date inputs
// and appends to whatever a previous attempt typed; replacing el.value keeps
// the fill idempotent. A selector that matches nothing is a hard error, not
// a silently unfiltered search.
func fillField(selector, value string) chromedp.Action {
	var ok bool
	return chromedp.Tasks{
		chromedp.Evaluate(fillFieldJS(selector, value), &ok),
		checkFilled(selector, &ok),
	}
}

func fillFieldJS(selector, value string) string {
	return fmt.Sprintf(`
		(function() {
			var el = document.querySelector(%q);
			if (!el) return false;
			el.value = %q;
			el.dispatchEvent(new Event('input', {bubbles: true}));
			el.dispatchEvent(new Event('change', {bubbles: true}));
			return true;
		})()
	`, selector, value)
}

func checkFilled(selector string, ok *bool) chromedp.Action {
	return chromedp.ActionFunc(func(context.Context) error {
		if !*ok {
			return &SessionError{
				Op:        "form-fill",
				Err:       fmt.Errorf("no element matches %q", selector),
				Permanent: true,
			}
		}
		return nil
	})
}

// stepContext derives a per-step context from the browser session, bounded
// by the navigation timeout and tied to the caller's cancellation so an
// aborted run interrupts any in-flight wait instead of riding out a timeout.
func (n *Navigator) stepContext(callerCtx context.Context) (context.Context, context.CancelFunc) {
	merged, cancelMerged := context.WithCancel(n.browserCtx)
	stop := context.AfterFunc(callerCtx, cancelMerged)
	stepCtx, cancelStep := context.WithTimeout(merged, n.cfg.NavTimeout)
	return stepCtx, func() {
		cancelStep()
		stop()
		cancelMerged()
	}
}

func isDeadline(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// findChromeBinary locates a Chrome/Chromium binary, preferring the
// configured path.
func findChromeBinary(configured string) string {
	if configured != "" {
		return configured
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
