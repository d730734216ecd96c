// SPDX-License-Identifier: MIT
package audio

import "time"

// Backoff schedule for the capture supervising loop. The delay starts at
// one second, grows by half after every consecutive failure, and is
// capped at eight seconds. Any successful stream open resets it.
const (
	backoffInitial = time.Second
	backoffFactor  = 1.5
	backoffMax     = 8 * time.Second

	// Fixed wait before re-enumerating when no device was found.
	noDeviceDelay = 2 * time.Second
)

// backoff is the explicit retry state: one transition per failure via
// Delay, one per success via Reset. Keeping it a plain value type makes
// the schedule testable without hardware.
type backoff struct {
	cur time.Duration
}

func newBackoff() *backoff {
	return &backoff{cur: backoffInitial}
}

// Delay returns the wait for the current failure and advances to the
// next step.
func (b *backoff) Delay() time.Duration {
	d := b.cur
	next := time.Duration(float64(b.cur) * backoffFactor)
	if next > backoffMax {
		next = backoffMax
	}
	b.cur = next
	return d
}

// Advance moves the schedule forward without reporting a wait. The
// no-device path sleeps a fixed delay but still escalates the schedule.
func (b *backoff) Advance() {
	b.Delay()
}

// Reset returns the schedule to its initial delay after a success.
func (b *backoff) Reset() {
	b.cur = backoffInitial
}
