/*
Package session serializes turn processing per conversation thread.

It layers reference-counted local locks and optional distributed locking over
a checkpoint store, so that a thread's load-advance-save cycle runs under
exclusive ownership even across replicas.
*/
package session
