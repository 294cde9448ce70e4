package consumer

// retryBudget counts consecutive apply failures per event id. State is
// per-consumer and in-memory, like the outbox publisher's retry tracker:
// a restart resets the counts, which only delays the skip, never loses data.
type retryBudget struct {
	budget   int
	attempts map[string]int
}

func newRetryBudget(budget int) *retryBudget {
	if budget <= 0 {
		budget = 5
	}
	return &retryBudget{budget: budget, attempts: map[string]int{}}
}

// failure records one failed apply and reports whether the event just spent
// its budget. An exhausted event's state is cleared so a later genuine
// redelivery starts a fresh budget.
func (b *retryBudget) failure(id string) (attempts int, exhausted bool) {
	b.attempts[id]++
	attempts = b.attempts[id]
	if attempts >= b.budget {
		delete(b.attempts, id)
		return attempts, true
	}
	return attempts, false
}

func (b *retryBudget) success(id string) {
	delete(b.attempts, id)
}
