// Package mediastate tracks what a conference client believes it is
// publishing: camera video, microphone audio and a screen share, each of
// which is stopped, playing or paused.
package mediastate

import (
	"fmt"
	"sync"
)

// State is the publish state of one track.
type State int

const (
	Stop State = iota
	Play
	Pause
)

func (s State) String() string {
	switch s {
	case Stop:
		return "stop"
	case Play:
		return "play"
	case Pause:
		return "pause"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText encodes s as its name.
func (s State) MarshalText() ([]byte, error) {
	switch s {
	case Stop, Play, Pause:
		return []byte(s.String()), nil
	}
	return nil, fmt.Errorf("mediastate: invalid state %d", int(s))
}

// UnmarshalText accepts the names produced by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "stop", "":
		*s = Stop
	case "play":
		*s = Play
	case "pause":
		*s = Pause
	default:
		return fmt.Errorf("mediastate: unknown state %q", b)
	}
	return nil
}

// Track identifies one of the three media tracks of a client.
type Track int

const (
	Video Track = iota
	Audio
	Screen
)

func (t Track) String() string {
	switch t {
	case Video:
		return "video"
	case Audio:
		return "audio"
	case Screen:
		return "screen"
	default:
		return fmt.Sprintf("Track(%d)", int(t))
	}
}

// Snapshot is a copy of all three track states.
type Snapshot struct {
	Video  State `json:"video"`
	Audio  State `json:"audio"`
	Screen State `json:"screen"`
}

// Active reports whether any track is playing or paused.
func (s Snapshot) Active() bool {
	return s != Snapshot{}
}

func (s Snapshot) get(t Track) State {
	switch t {
	case Video:
		return s.Video
	case Audio:
		return s.Audio
	default:
		return s.Screen
	}
}

func (s *Snapshot) set(t Track, st State) {
	switch t {
	case Video:
		s.Video = st
	case Audio:
		s.Audio = st
	default:
		s.Screen = st
	}
}

// Tracker is the per-client state machine. The zero value has every track
// stopped and is ready to use.
//
//	Stop  --Publish--> Play
//	Play  --Pause----> Pause
//	Pause --Resume---> Play
//	Play|Pause --Stop--> Stop
//
// Every other transition is refused and leaves the state unchanged.
type Tracker struct {
	mu    sync.Mutex
	state Snapshot
}

// Publish moves t from Stop to Play.
func (tr *Tracker) Publish(t Track) bool {
	return tr.transition(t, Play, Stop)
}

// Pause moves t from Play to Pause.
func (tr *Tracker) Pause(t Track) bool {
	return tr.transition(t, Pause, Play)
}

// Resume moves t from Pause to Play.
func (tr *Tracker) Resume(t Track) bool {
	return tr.transition(t, Play, Pause)
}

// Stop moves t from Play or Pause to Stop.
func (tr *Tracker) Stop(t Track) bool {
	return tr.transition(t, Stop, Play, Pause)
}

// StopAll forces every track to Stop.
func (tr *Tracker) StopAll() {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.state = Snapshot{}
}

// Get returns the state of t.
func (tr *Tracker) Get(t Track) State {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.state.get(t)
}

// Snapshot returns a copy of the current states.
func (tr *Tracker) Snapshot() Snapshot {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.state
}

// Can reports whether t is currently in one of from.
func (tr *Tracker) Can(t Track, from ...State) bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	cur := tr.state.get(t)
	for _, f := range from {
		if cur == f {
			return true
		}
	}
	return false
}

func (tr *Tracker) transition(t Track, to State, from ...State) bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	cur := tr.state.get(t)
	for _, f := range from {
		if cur == f {
			tr.state.set(t, to)
			return true
		}
	}
	return false
}
