package service

import (
	"opsboard/internal/notify"
	"opsboard/internal/policy"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate = validator.New()

// Deps are the collaborators every service shares.
type Deps struct {
	Policy *policy.Table
	Clock  Clock
	Log    *zap.Logger
	Sink   notify.Sink
}

func (d Deps) withDefaults() Deps {
	if d.Policy == nil {
		d.Policy = policy.Default()
	}
	if d.Clock == nil {
		d.Clock = NewMonotonicClock(nil)
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Sink == nil {
		d.Sink = notify.Nop{}
	}
	return d
}

func (d Deps) outcome() outcome {
	return outcome{log: d.Log, sink: d.Sink, clock: d.Clock}
}
