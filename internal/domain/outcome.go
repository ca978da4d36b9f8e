package domain

// Outcome is the terminal report of a batch. Callers render it; the engine
// never formats user-facing text.
//
// RetrySucceeded counts the units of the last retry pass that succeeded:
// Amount - AmountBeforeRetry - remaining failures. It is zero when the batch
// was never retried.
type Outcome struct {
	BatchID        string
	Target         Target
	Kind           Kind
	Status         BatchStatus
	Succeeded      int
	Failed         int
	Total          int
	RetrySucceeded int
	RetryAttempts  int
	Causes         map[FailureCause]int
	Failures       []FailureEntry
}

func (s BatchSnapshot) Outcome() Outcome {
	causes := make(map[FailureCause]int)
	failedIterations := make(map[int]struct{}, len(s.Failures))
	for _, entry := range s.Failures {
		causes[entry.Cause]++
		failedIterations[entry.Key.Iteration] = struct{}{}
	}

	failed := len(failedIterations)

	var retrySucceeded int
	if s.RetryAttempt > 0 {
		retrySucceeded = max(s.Amount-s.AmountBeforeRetry-failed, 0)
	}

	if failed > s.Requested {
		failed = s.Requested
	}

	return Outcome{
		BatchID:        s.ID,
		Target:         s.Target,
		Kind:           s.Kind,
		Status:         s.Status,
		Succeeded:      s.Requested - failed,
		Failed:         failed,
		Total:          s.Requested,
		RetrySucceeded: retrySucceeded,
		RetryAttempts:  s.RetryAttempt,
		Causes:         causes,
		Failures:       s.Failures,
	}
}
