package watch

import "time"

// resetTimer restarts t to fire after d, draining any already-fired but
// unread value first — the standard idiom for a resettable one-shot timer
// (grounded on mraakashshah-oro's resetDebounceTimer).
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
