package telemetry

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// Status is the result class of a client call.
type Status string

const (
	StatusOK      Status = "ok"
	StatusStarted Status = "started"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Outcome is what every Client call returns instead of an error or panic.
type Outcome struct {
	Status Status
	Reason string
	Err    error
}

// OK reports whether the call did what was asked or started doing it.
func (o Outcome) OK() bool {
	return o.Status == StatusOK || o.Status == StatusStarted
}

func (o Outcome) String() string {
	if o.Reason == "" {
		return string(o.Status)
	}
	return fmt.Sprintf("%s: %s", o.Status, o.Reason)
}

func ok() Outcome {
	return Outcome{Status: StatusOK}
}

func skipped(reason string, err error) Outcome {
	return Outcome{Status: StatusSkipped, Reason: reason, Err: err}
}

func failed(err error) Outcome {
	return Outcome{Status: StatusFailed, Reason: err.Error(), Err: err}
}

// recoverTo turns a panic in op into a failed outcome.
func recoverTo(op string, out *Outcome) {
	if r := recover(); r != nil {
		err := fmt.Errorf("panic in %s: %v", op, r)
		log.Error().Err(err).Str("op", op).Msg("Recovered from panic")
		*out = failed(err)
	}
}
