// Package effect converts heterogeneous async sources into one cancellable,
// timeoutable Effect contract. Adapters race the underlying work against the
// caller's context and, for WithTimeout, a wall-clock timer; whichever
// settles first wins. Cancellation and timeout are the only conditions
// surfaced as typed errors (CancellationError, AdapterTimeoutError); every
// other failure from a wrapped effect is returned unchanged.
package effect
