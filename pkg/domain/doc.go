/*
Package domain contains the pure data model of the Cadence dialogue runtime:
the persisted DialogueState, the flow stack and its scoped slot storage, the
conversation state machine table, the closed set of message classifications,
flow definitions, and the error taxonomy.

Nothing in this package performs I/O or holds mutable singletons. All behavior
that mutates a DialogueState lives in internal/runtime; adapters serialize the
types defined here via the versioned codec (EncodeState / DecodeState).
*/
package domain
