/*
Package ports declares the boundary interfaces of the Cadence engine.

The runtime consumes these contracts without knowing their implementations:
checkpoint persistence (StateStore), cross-replica coordination
(DistributedLocker), flow-definition resolution (FlowLoader), and the external
collaborators (Understander, ActionExecutor, SlotNormalizer, KnowledgeSource).
Adapters under pkg/adapters provide the concrete implementations.
*/
package ports
