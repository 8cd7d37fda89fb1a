package audit

import (
	"github.com/havenboard/checkin/pkg/events"
	"github.com/havenboard/checkin/pkg/logger"
)

const lifecycleSubjects = "checkin.*"

// Recorder writes every check-in lifecycle event to the structured log.
// Deletes are hard removals, so this log is the only trail a removed
// record leaves behind.
type Recorder struct {
	bus events.Subscriber
}

func NewRecorder(bus events.Subscriber) *Recorder {
	return &Recorder{bus: bus}
}

func (r *Recorder) Start() error {
	return r.bus.Subscribe(lifecycleSubjects, r.record)
}

func (r *Recorder) record(msg *events.Message) {
	logger.Info("Check-in event",
		"subject", msg.Subject,
		"data", string(msg.Data),
	)
}
