package rig

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// ErrNoMatchingBones is returned when retargeting leaves a clip empty.
var ErrNoMatchingBones = errors.New("no matching bones")

// Channel is one animated property of one node.
type Channel struct {
	Target string // node or bone name
	Path   string // translation, rotation, scale or weights
}

// Clip is a skeletal animation with a playback head in seconds.
type Clip struct {
	name     string
	From     float64
	To       float64
	Loop     bool
	Channels []Channel

	mu      sync.RWMutex
	playing bool
	looping bool
	head    float64
	speed   float64
	starts  int
	stops   int
}

// NewClip creates a stopped clip spanning [from, to].
func NewClip(name string, from, to float64, channels ...Channel) *Clip {
	return &Clip{
		name:     name,
		From:     from,
		To:       to,
		Loop:     true,
		Channels: channels,
		speed:    1.0,
	}
}

func (c *Clip) Name() string {
	return c.name
}

// Start rewinds to From and plays.
func (c *Clip) Start(loop bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playing = true
	c.looping = loop
	c.head = c.From
	c.starts++
}

func (c *Clip) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playing = false
	c.stops++
}

// SetSpeed scales how fast Advance moves the head. Non-positive speeds are ignored.
func (c *Clip) SetSpeed(speed float64) {
	if speed <= 0 {
		return
	}
	c.mu.Lock()
	c.speed = speed
	c.mu.Unlock()
}

// Advance moves the head by dt seconds. Looping clips wrap to From;
// others clamp at To and stop.
func (c *Clip) Advance(dt float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.playing || dt <= 0 {
		return
	}

	c.head += dt * c.speed
	if c.head <= c.To {
		return
	}

	span := c.To - c.From
	if c.looping && span > 0 {
		c.head = c.From + math.Mod(c.head-c.From, span)
		return
	}
	c.head = c.To
	c.playing = false
}

func (c *Clip) Head() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.head
}

func (c *Clip) Playing() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playing
}

// Starts returns how many times Start was called.
func (c *Clip) Starts() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.starts
}

// Stops returns how many times Stop was called.
func (c *Clip) Stops() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stops
}

func (c *Clip) Duration() float64 {
	return c.To - c.From
}

// Players advances a set of clips together.
type Players []*Clip

func (p Players) Advance(dt float64) {
	for _, c := range p {
		c.Advance(dt)
	}
}

// Skeleton is the avatar's bone set.
type Skeleton struct {
	bones map[string]struct{}
	order []string
}

// NewSkeleton creates a skeleton from bone names.
func NewSkeleton(bones ...string) *Skeleton {
	s := &Skeleton{bones: make(map[string]struct{}, len(bones))}
	for _, b := range bones {
		if _, ok := s.bones[b]; ok {
			continue
		}
		s.bones[b] = struct{}{}
		s.order = append(s.order, b)
	}
	return s
}

func (s *Skeleton) Has(bone string) bool {
	if s == nil {
		return false
	}
	_, ok := s.bones[bone]
	return ok
}

func (s *Skeleton) Bones() []string {
	if s == nil {
		return nil
	}
	return s.order
}

// Retarget copies src as a new clip named name that keeps only the channels
// whose target bone exists on skel.
func Retarget(src *Clip, skel *Skeleton, name string) (*Clip, error) {
	if src == nil {
		return nil, fmt.Errorf("retarget: nil clip")
	}
	kept := make([]Channel, 0, len(src.Channels))
	for _, ch := range src.Channels {
		if skel.Has(ch.Target) {
			kept = append(kept, ch)
		}
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("retarget %q: %w", src.Name(), ErrNoMatchingBones)
	}
	out := NewClip(name, src.From, src.To, kept...)
	out.Loop = src.Loop
	return out, nil
}
