// Package lipsync schedules viseme tracks against speech audio and computes
// per-frame morph-target weights.
package lipsync

import (
	"errors"
	"fmt"
	"math"
)

// ErrMalformedViseme marks an event rejected at ingestion.
var ErrMalformedViseme = errors.New("malformed viseme")

// Event is one timed viseme. Times are seconds from audio start.
type Event struct {
	Start float64 `json:"start" yaml:"start"`
	End   float64 `json:"end" yaml:"end"`
	Value string  `json:"value" yaml:"value"`
}

// Contains reports whether t falls in [Start, End].
func (e Event) Contains(t float64) bool {
	return t >= e.Start && t <= e.End
}

// Validate checks the event timing and value.
func (e Event) Validate() error {
	switch {
	case math.IsNaN(e.Start) || math.IsInf(e.Start, 0) || math.IsNaN(e.End) || math.IsInf(e.End, 0):
		return errors.New("non-finite time")
	case e.Start < 0:
		return errors.New("negative start")
	case e.End <= e.Start:
		return errors.New("end not after start")
	case e.Value == "":
		return errors.New("empty value")
	}
	return nil
}

// MalformedError describes a dropped event.
type MalformedError struct {
	Index  int
	Event  Event
	Reason error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("viseme %d {%g, %g, %q}: %v", e.Index, e.Event.Start, e.Event.End, e.Event.Value, e.Reason)
}

func (e *MalformedError) Is(target error) bool {
	return target == ErrMalformedViseme
}

func (e *MalformedError) Unwrap() error {
	return e.Reason
}

// Track is a viseme sequence in the order the speech backend sent it.
type Track []Event

// NewTrack validates events, dropping malformed ones. The returned error joins
// one *MalformedError per dropped event; the track is usable either way.
// Surviving events keep their input order, which decides overlaps.
func NewTrack(events []Event) (Track, error) {
	track := make(Track, 0, len(events))
	var errs []error
	for i, e := range events {
		if err := e.Validate(); err != nil {
			errs = append(errs, &MalformedError{Index: i, Event: e, Reason: err})
			continue
		}
		track = append(track, e)
	}
	return track, errors.Join(errs...)
}

// Find returns the index of the first event containing t, or -1.
func (t Track) Find(elapsed float64) int {
	for i, e := range t {
		if e.Contains(elapsed) {
			return i
		}
	}
	return -1
}

// Duration is the latest end time in the track.
func (t Track) Duration() float64 {
	var d float64
	for _, e := range t {
		if e.End > d {
			d = e.End
		}
	}
	return d
}

// Dropped reports how many events an ingestion error rejected.
func Dropped(err error) int {
	if err == nil {
		return 0
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return len(joined.Unwrap())
	}
	return 1
}
