// Package avpipe is the core of a pluggable media pipeline: reusable
// elements connected by typed pads, through which packets and frames
// flow from sources to sinks under a strict state machine and
// clock-driven synchronization.
//
// The moving parts:
//
//   - An [Element] walks Null <-> Ready <-> Paused <-> Running through
//     adjacent transitions; threaded elements own a private [Worker]
//     whose interruptible [Sleep] keeps producers preemptible.
//   - A [Pad] links one element's output to another's input and carries
//     resources, events and negotiation properties.
//   - A [Pipeline] owns the element tree, an ordered event [Bus] with a
//     dispatch worker, a shared typed [Context], and the clock
//     arbitration of [MediaController] (audio masters when present).
//
// Element implementations live in the elements package, decoding glue in
// reisenmedia, Ebitengine output adapters in ebitenio, and the URL-to-
// playback façade in player.
package avpipe
