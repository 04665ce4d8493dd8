package session

import "sync/atomic"

// connStats tracks per-connection counters the original server exposed
// for debugging and load testing: audio volume received and event
// volume sent, plus how many utterances have been segmented.
type connStats struct {
	audioChunksIn   atomic.Uint64
	audioBytesIn    atomic.Uint64
	eventsOut       atomic.Uint64
	utterancesTotal atomic.Uint64
}

func (s *connStats) recordAudioIn(n int) {
	s.audioChunksIn.Add(1)
	s.audioBytesIn.Add(uint64(n))
}

func (s *connStats) recordEventOut() {
	s.eventsOut.Add(1)
}

func (s *connStats) recordUtterance() {
	s.utterancesTotal.Add(1)
}

func (s *connStats) snapshot() StatsResponseFrame {
	return StatsResponseFrame{
		Type:            "stats",
		AudioChunksIn:   s.audioChunksIn.Load(),
		AudioBytesIn:    s.audioBytesIn.Load(),
		EventsOut:       s.eventsOut.Load(),
		UtterancesTotal: s.utterancesTotal.Load(),
	}
}
