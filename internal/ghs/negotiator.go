package ghs

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/srg/ghsd/internal/eventloop"
	"github.com/srg/ghsd/internal/gatt"
	"github.com/srg/ghsd/internal/subscription"
)

// Negotiator owns the active Schedule. It validates schedule descriptor writes and
// tells the other Schedule Changed subscribers about accepted changes.
type Negotiator struct {
	sensorType uint32
	schedule   Schedule
	raw        []byte

	changed   *gatt.Characteristic
	tracker   *subscription.Tracker
	platform  gatt.Platform
	scheduler eventloop.Scheduler
	logger    *logrus.Logger

	onChange func(Schedule)
}

// NewNegotiator creates a negotiator holding initial. Accepted changes are fanned out on
// the changed characteristic to the active members tracked for it.
func NewNegotiator(initial Schedule, changed *gatt.Characteristic, tracker *subscription.Tracker,
	platform gatt.Platform, scheduler eventloop.Scheduler, logger *logrus.Logger) *Negotiator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Negotiator{
		sensorType: initial.SensorType,
		schedule:   initial,
		changed:    changed,
		tracker:    tracker,
		platform:   platform,
		scheduler:  scheduler,
		logger:     logger,
	}
}

// OnChange registers fn to run after every accepted schedule.
func (n *Negotiator) OnChange(fn func(Schedule)) {
	n.onChange = fn
}

// Current returns the schedule in force.
func (n *Negotiator) Current() Schedule {
	return n.schedule
}

// Read returns the last accepted descriptor bytes, or the encoding of the initial schedule.
func (n *Negotiator) Read() []byte {
	if n.raw == nil {
		return n.schedule.Encode()
	}
	return append([]byte(nil), n.raw...)
}

// ApplyWrite validates a schedule write from writer and, when accepted, replaces the schedule
// and posts the Schedule Changed fan-out. A rejected write leaves the schedule untouched.
func (n *Negotiator) ApplyWrite(writer gatt.ClientID, data []byte) gatt.Status {
	return gatt.StatusOf(n.Apply(writer, data))
}

// Apply is ApplyWrite returning the validation error instead of its status.
func (n *Negotiator) Apply(writer gatt.ClientID, data []byte) error {
	schedule, err := DecodeSchedule(data, n.sensorType)
	if err != nil {
		n.logger.WithFields(logrus.Fields{
			"client": writer,
			"error":  err,
		}).Info("Rejected schedule write")
		return err
	}

	raw := append([]byte(nil), data...)
	n.schedule = schedule
	n.raw = raw

	n.logger.WithFields(logrus.Fields{
		"client":   writer,
		"schedule": schedule.String(),
	}).Info("Schedule changed")

	if n.onChange != nil {
		n.onChange(schedule)
	}
	n.scheduler.Post(func() { n.notifyOthers(writer, raw) })
	return nil
}

// notifyOthers sends raw on the Schedule Changed characteristic to every connected
// subscriber except writer.
func (n *Negotiator) notifyOthers(writer gatt.ClientID, raw []byte) {
	if n.changed == nil {
		return
	}
	for _, client := range n.tracker.Active(n.changed) {
		if client == writer {
			continue
		}
		if err := n.platform.SendNotification(raw, client, n.changed); err != nil {
			entry := n.logger.WithFields(logrus.Fields{
				"client": client,
				"error":  err,
			})
			if errors.Is(err, gatt.ErrNotSubscribed) {
				entry.Debug("Skipped schedule change for client without a live subscription")
			} else {
				entry.Warn("Failed to indicate schedule change")
			}
			continue
		}
		n.logger.WithField("client", client).Debug("Indicated schedule change")
	}
}
