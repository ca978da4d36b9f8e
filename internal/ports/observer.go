package ports

import "github.com/bnema/botfleet/internal/domain"

// Tick describes one scheduler tick. Cause is empty when the unit succeeded.
type Tick struct {
	Iteration int
	Account   domain.AccountID
	Performed bool
	Cause     domain.FailureCause
}

// Observer receives scheduler progress. OnFinish is called exactly once per
// batch. Implementations must not block.
type Observer interface {
	OnTick(snapshot domain.BatchSnapshot, tick Tick)
	OnFinish(outcome domain.Outcome)
}

type NopObserver struct{}

func (NopObserver) OnTick(domain.BatchSnapshot, Tick) {}
func (NopObserver) OnFinish(domain.Outcome)          {}

// Observers fans every event out to each observer in order.
type Observers []Observer

func (o Observers) OnTick(snapshot domain.BatchSnapshot, tick Tick) {
	for _, observer := range o {
		observer.OnTick(snapshot, tick)
	}
}

func (o Observers) OnFinish(outcome domain.Outcome) {
	for _, observer := range o {
		observer.OnFinish(outcome)
	}
}
