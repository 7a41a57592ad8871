// Package runtime implements the turn orchestrator: conversation-state
// transitions, the flow stack, slot processing, digression resolution, step
// advancement, and end-of-turn pruning. The public surface of the module
// wraps this package; embedders normally go through the root package instead
// of importing it directly.
package runtime
