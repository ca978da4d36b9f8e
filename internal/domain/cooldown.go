package domain

import "time"

type Cooldown struct {
	UserID    string
	Until     time.Time
	Remaining time.Duration
}

func (c Cooldown) Active() bool {
	return c.Remaining > 0
}
