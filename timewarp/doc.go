// Package timewarp implements a single-actor Time Warp optimistic
// discrete-event simulation kernel: a generic actor abstraction whose state
// evolves over a virtual time axis, processes causally-linked events that may
// arrive out of order, and rolls back when a straggler event reveals that a
// past event was missed.
package timewarp
