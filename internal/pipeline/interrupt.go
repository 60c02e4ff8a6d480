package pipeline

import "sync/atomic"

// Interrupter carries barge-in out of band. The recognizer bumps the
// generation whenever the caller speaks; the synthesizer polls it
// between audio chunks and abandons output from an older generation.
// In-band SignalInterrupt frames mark the same event for stages that
// only need stream ordering.
type Interrupter struct {
	generation atomic.Int64
}

func NewInterrupter() *Interrupter { return &Interrupter{} }

// Interrupt marks the start of caller speech.
func (i *Interrupter) Interrupt() { i.generation.Add(1) }

// Generation returns the current interrupt epoch.
func (i *Interrupter) Generation() int64 { return i.generation.Load() }
