package wallet

import "github.com/benbjohnson/clock"

// Clock abstracts wall-clock time so TTL (mark_selected) and timelock checks
// can be driven deterministically in tests instead of sleeping on real time.
type Clock = clock.Clock

// realClock is the default, wired to the real wall clock.
var realClock Clock = clock.New()
