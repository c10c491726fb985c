// Package dialogue implements a persistent multi-step question engine for
// conversational bots. Every inbound update is handled statelessly: progress
// lives in an external keyed store between invocations, and "waiting for an
// answer" is a persisted flag, never an in-process suspension.
package dialogue
