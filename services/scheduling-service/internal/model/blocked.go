package model

import (
	"errors"
	"time"
)

var ErrInvalidInterval = errors.New("interval end must be after start")

// BlockedInterval is an administrator declared blackout window.
type BlockedInterval struct {
	ID        string
	Start     time.Time
	End       time.Time
	Reason    string
	Active    bool
	CreatedAt time.Time
}

func (b BlockedInterval) Validate() error {
	if !b.End.After(b.Start) {
		return ErrInvalidInterval
	}
	return nil
}
