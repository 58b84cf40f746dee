package bridge

import (
	"strings"
	"time"
)

// State tracks where a call session is in its lifecycle. Transitions are
// driven by two concurrent event sources (telephony and AI), so all state
// changes happen under the bridge mutex.
type State int

const (
	StateConnecting State = iota
	StateActive
	StateReady
	StateStreaming
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateReady:
		return "ready"
	case StateStreaming:
		return "streaming"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session holds the per-call state. It exists only between a start event and
// its matching stop, is owned exclusively by one Bridge, and is never shared
// across calls.
type Session struct {
	StreamID      string
	CallSID       string
	CustomerPhone string

	LatestMediaTimestamp   int64
	ResponseStartTimestamp int64
	responseStartSet       bool

	PendingMarks        []string
	LastAssistantItemID string
	ResponseText        strings.Builder

	IncomingAudio []byte
	OutgoingAudio []byte

	silenceTimer *time.Timer
}

// reset prepares the session for a new stream, clearing all per-call
// accumulators.
func (s *Session) reset(streamID, phone string) {
	s.StreamID = streamID
	s.CustomerPhone = phone
	s.LatestMediaTimestamp = 0
	s.ResponseStartTimestamp = 0
	s.responseStartSet = false
	s.PendingMarks = nil
	s.LastAssistantItemID = ""
	s.ResponseText.Reset()
	s.IncomingAudio = nil
	s.OutgoingAudio = nil
	s.cancelSilence()
}

// rearmSilence replaces the outstanding silence timer with a fresh one. Only
// one timer is ever pending per session.
func (s *Session) rearmSilence(d time.Duration, fn func()) {
	if s.silenceTimer != nil {
		s.silenceTimer.Stop()
	}
	s.silenceTimer = time.AfterFunc(d, fn)
}

func (s *Session) cancelSilence() {
	if s.silenceTimer != nil {
		s.silenceTimer.Stop()
		s.silenceTimer = nil
	}
}
