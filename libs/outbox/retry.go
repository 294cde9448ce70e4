package outbox

import "time"

// retryTracker keeps per-record publish failure state. It lives in the
// publisher instance only; cross-process coordination is not needed because
// duplicate publishes are safe downstream.
type retryTracker struct {
	base   time.Duration
	cap    time.Duration
	budget int
	state  map[int64]*retryState
}

type retryState struct {
	attempts    int
	nextAttempt time.Time
}

func newRetryTracker(base, cap time.Duration, budget int) *retryTracker {
	if base <= 0 {
		base = 2 * time.Second
	}
	if cap <= 0 {
		cap = 5 * time.Minute
	}
	if budget <= 0 {
		budget = 10
	}
	return &retryTracker{base: base, cap: cap, budget: budget, state: map[int64]*retryState{}}
}

// ready reports whether the record's backoff window has elapsed.
func (t *retryTracker) ready(id int64, now time.Time) bool {
	s := t.state[id]
	return s == nil || !now.Before(s.nextAttempt)
}

// failure records a publish failure and returns the attempt count plus
// whether the record just crossed the retry budget (poison threshold).
// Records past the budget keep retrying at the capped interval; surfacing
// them is monitoring's job, dropping them is never an option.
func (t *retryTracker) failure(id int64, now time.Time) (attempts int, exhausted bool) {
	s := t.state[id]
	if s == nil {
		s = &retryState{}
		t.state[id] = s
	}
	s.attempts++
	s.nextAttempt = now.Add(backoffDelay(t.base, t.cap, s.attempts))
	return s.attempts, s.attempts == t.budget
}

func (t *retryTracker) success(id int64) {
	delete(t.state, id)
}

// backoffDelay is base * 2^(attempts-1), capped.
func backoffDelay(base, cap time.Duration, attempts int) time.Duration {
	d := base
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	if d > cap {
		return cap
	}
	return d
}
