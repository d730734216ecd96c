// SPDX-License-Identifier: MIT
package audio

import (
	"testing"
	"time"
)

func TestBackoffSequence(t *testing.T) {
	b := newBackoff()

	want := []float64{1.0, 1.5, 2.25, 3.375, 5.0625, 7.59375, 8.0, 8.0}
	for i, w := range want {
		got := b.Delay().Seconds()
		if got != w {
			t.Fatalf("delay %d = %v, want %v", i, got, w)
		}
	}
}

func TestBackoffReset(t *testing.T) {
	b := newBackoff()
	for i := 0; i < 5; i++ {
		b.Delay()
	}
	b.Reset()
	if got := b.Delay(); got != time.Second {
		t.Errorf("delay after reset = %v, want 1s", got)
	}
}

func TestBackoffAdvance(t *testing.T) {
	b := newBackoff()
	b.Advance()
	if got := b.Delay(); got != 1500*time.Millisecond {
		t.Errorf("delay after advance = %v, want 1.5s", got)
	}
}
