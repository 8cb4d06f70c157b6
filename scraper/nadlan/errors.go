package nadlan

import "fmt"

// SessionError means the browser session could not be established or was
// lost mid-run. Permanent instances (portal down, bad portal URL) are fatal;
// everything else is assumed to be flaky network and retried.
type SessionError struct {
	Op        string
	Err       error
	Permanent bool
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session error during %s: %v", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// Transient reports whether the retry controller should retry this error.
func (e *SessionError) Transient() bool { return !e.Permanent }

// NavigationTimeout means a readiness condition was not met within the step
// timeout. Always retried with backoff.
type NavigationTimeout struct {
	Wait    string
	Elapsed string
}

func (e *NavigationTimeout) Error() string {
	return fmt.Sprintf("navigation timeout waiting for %s after %s", e.Wait, e.Elapsed)
}

func (e *NavigationTimeout) Transient() bool { return true }
