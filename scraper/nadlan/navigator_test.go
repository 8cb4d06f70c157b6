package nadlan

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"nadlan-scraper/config"
)

func newStubNavigator() *Navigator {
	cfg := testConfig()
	cfg.NavTimeout = time.Second
	n := NewNavigator(cfg, config.DefaultSelectors().Nav, testLogger())
	n.browserCtx = context.Background()
	return n
}

func TestFillFieldJSReplacesValue(t *testing.T) {
	js := fillFieldJS(`input[name="city"]`, "באר שבע")

	// The script must assign el.value, not simulate typing, so a retried
	// search overwrites the previous attempt's text instead of appending.
	if !strings.Contains(js, `el.value = "באר שבע"`) {
		t.Errorf("fill script does not assign the value:\n%s", js)
	}
	if !strings.Contains(js, `querySelector("input[name=\"city\"]")`) {
		t.Errorf("selector not quoted into the script:\n%s", js)
	}
}

func TestCheckFilledSurfacesMissingField(t *testing.T) {
	missing := false
	err := checkFilled(`input[name="fromDate"]`, &missing).Do(context.Background())

	var se *SessionError
	if !errors.As(err, &se) {
		t.Fatalf("expected SessionError for an unmatched field, got %v", err)
	}
	if se.Transient() {
		t.Error("a selector that matches nothing is layout drift, not a flake")
	}

	filled := true
	if err := checkFilled("x", &filled).Do(context.Background()); err != nil {
		t.Errorf("filled field reported an error: %v", err)
	}
}

func TestNextPageDoesNotReclickWhileStabilizing(t *testing.T) {
	n := newStubNavigator()

	clicks := 0
	n.clickNext = func(context.Context) (bool, error) {
		clicks++
		return true, nil
	}
	waits := 0
	n.stabilize = func(context.Context) (SearchOutcome, error) {
		waits++
		if waits == 1 {
			return NoResults, &NavigationTimeout{Wait: "results quiescence", Elapsed: "1s"}
		}
		return ResultsFound, nil
	}

	if _, err := n.NextPage(context.Background()); err == nil {
		t.Fatal("expected the first attempt to fail on stabilization")
	}

	outcome, err := n.NextPage(context.Background())
	if err != nil {
		t.Fatalf("retried NextPage returned error: %v", err)
	}
	if outcome != HasMore {
		t.Errorf("outcome = %v; want HasMore", outcome)
	}
	if clicks != 1 {
		t.Errorf("next control clicked %d times across a retried advance; want 1", clicks)
	}
	if waits != 2 {
		t.Errorf("stabilization ran %d times; want 2", waits)
	}
}

func TestNextPageClicksAgainAfterCleanAdvance(t *testing.T) {
	n := newStubNavigator()

	clicks := 0
	n.clickNext = func(context.Context) (bool, error) {
		clicks++
		return clicks < 3, nil
	}
	n.stabilize = func(context.Context) (SearchOutcome, error) {
		return ResultsFound, nil
	}

	for i := 0; i < 2; i++ {
		outcome, err := n.NextPage(context.Background())
		if err != nil {
			t.Fatalf("NextPage returned error: %v", err)
		}
		if outcome != HasMore {
			t.Fatalf("outcome = %v; want HasMore", outcome)
		}
	}

	outcome, err := n.NextPage(context.Background())
	if err != nil {
		t.Fatalf("NextPage returned error: %v", err)
	}
	if outcome != Exhausted {
		t.Errorf("outcome = %v; want Exhausted once the control is gone", outcome)
	}
	if clicks != 3 {
		t.Errorf("next control clicked %d times; want 3", clicks)
	}
}
