package transmitter

import "sync/atomic"

// Guard is the process-wide write kill switch.
type Guard interface {
	WriteDisabled() bool
}

// GuardFunc adapts a function to Guard.
type GuardFunc func() bool

// WriteDisabled calls f.
func (f GuardFunc) WriteDisabled() bool { return f() }

// KillSwitch is a Guard that can be flipped at runtime.
type KillSwitch struct {
	disabled atomic.Bool
}

// NewKillSwitch returns a switch in the given state.
func NewKillSwitch(disabled bool) *KillSwitch {
	k := &KillSwitch{}
	k.disabled.Store(disabled)
	return k
}

// Disable turns writes off.
func (k *KillSwitch) Disable() { k.disabled.Store(true) }

// Enable turns writes back on.
func (k *KillSwitch) Enable() { k.disabled.Store(false) }

// WriteDisabled reports whether writes are off.
func (k *KillSwitch) WriteDisabled() bool { return k.disabled.Load() }
