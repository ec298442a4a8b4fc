package ghs

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/ghsd/internal/eventloop"
	"github.com/srg/ghsd/internal/gatt"
	"github.com/srg/ghsd/internal/subscription"
)

// EmitterState is the emission lifecycle state.
type EmitterState int

const (
	Idle EmitterState = iota
	Active
)

func (s EmitterState) String() string {
	if s == Active {
		return "ACTIVE"
	}
	return "IDLE"
}

// Emitter periodically encodes an observation, segments it for the smallest payload
// size among connected subscribers and notifies each of them.
//
// It is Active while at least one connected client is subscribed to the observation
// characteristic. Each cycle reschedules itself after the current update interval.
type Emitter struct {
	char      *gatt.Characteristic
	schedule  func() Schedule
	source    ValueSource
	segmenter *Segmenter
	tracker   *subscription.Tracker
	platform  gatt.Platform
	scheduler eventloop.Scheduler
	feed      *Feed
	clock     func() time.Time
	logger    *logrus.Logger

	state EmitterState
	next  eventloop.Task
}

// EmitterConfig collects the collaborators of an Emitter.
type EmitterConfig struct {
	Characteristic *gatt.Characteristic
	Schedule       func() Schedule
	Source         ValueSource
	Tracker        *subscription.Tracker
	Platform       gatt.Platform
	Scheduler      eventloop.Scheduler
	Feed           *Feed            // optional
	Clock          func() time.Time // defaults to time.Now
	Logger         *logrus.Logger
}

// NewEmitter creates an idle emitter.
func NewEmitter(cfg EmitterConfig) *Emitter {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Emitter{
		char:      cfg.Characteristic,
		schedule:  cfg.Schedule,
		source:    cfg.Source,
		segmenter: NewSegmenter(gatt.PayloadFloor(cfg.Platform)),
		tracker:   cfg.Tracker,
		platform:  cfg.Platform,
		scheduler: cfg.Scheduler,
		feed:      cfg.Feed,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
	}
}

// State returns the lifecycle state.
func (e *Emitter) State() EmitterState {
	return e.state
}

// Segmenter returns the segmenter owning the rolling counter.
func (e *Emitter) Segmenter() *Segmenter {
	return e.segmenter
}

// Evaluate reconciles the state with the current subscribers: the first connected
// subscriber starts emission immediately, losing the last one stops it.
func (e *Emitter) Evaluate() {
	active := len(e.tracker.Active(e.char)) > 0
	switch {
	case active && e.state == Idle:
		e.state = Active
		e.logger.Info("Starting observation emission")
		e.emit()
	case !active && e.state == Active:
		e.Stop()
	}
}

// Stop cancels the pending cycle and returns to Idle.
func (e *Emitter) Stop() {
	if e.next != nil {
		e.next.Cancel()
		e.next = nil
	}
	if e.state == Active {
		e.logger.Info("Stopping observation emission")
	}
	e.state = Idle
}

// Reschedule replaces the pending cycle so a new update interval takes effect
// without waiting for the old one to elapse.
func (e *Emitter) Reschedule() {
	if e.state != Active {
		return
	}
	if e.next != nil {
		e.next.Cancel()
	}
	e.next = e.scheduler.PostDelayed(e.schedule().Interval(), e.emit)
}

func (e *Emitter) emit() {
	e.next = nil
	if e.state != Active {
		return
	}

	clients := e.tracker.Active(e.char)
	if len(clients) == 0 {
		e.Stop()
		return
	}

	schedule := e.schedule()
	value, err := e.source.Next()
	if err != nil {
		e.logger.WithField("error", err).Warn("Failed to produce observation value, skipping cycle")
	} else {
		e.send(clients, schedule, value)
	}

	e.next = e.scheduler.PostDelayed(schedule.Interval(), e.emit)
}

func (e *Emitter) send(clients []gatt.ClientID, schedule Schedule, value float32) {
	obs := Observation{
		SensorType:          schedule.SensorType,
		Timestamp:           e.clock().UTC(),
		MeasurementDuration: schedule.MeasurementDuration,
		Unit:                MDCDimPercent,
		Value:               value,
	}

	maxPayload := e.tracker.MinPayloadSize(e.char, gatt.PayloadFloor(e.platform))
	segments := e.segmenter.Segment(obs.Encode(), maxPayload)

	for _, segment := range segments {
		for _, client := range clients {
			if err := e.platform.SendNotification(segment, client, e.char); err != nil {
				entry := e.logger.WithFields(logrus.Fields{
					"client": client,
					"error":  err,
				})
				if errors.Is(err, gatt.ErrNotSubscribed) {
					entry.Debug("Skipped observation segment for client without a live subscription")
					continue
				}
				entry.Warn("Failed to notify observation segment")
			}
		}
	}

	e.logger.WithFields(logrus.Fields{
		"value":       value,
		"segments":    len(segments),
		"max_payload": maxPayload,
		"clients":     len(clients),
	}).Debug("Emitted observation")

	if e.feed != nil {
		if err := e.feed.Publish(obs); err != nil {
			e.logger.WithField("error", err).Warn("Failed to publish observation")
		}
	}
}
