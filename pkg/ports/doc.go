/*
Package ports defines the driven ports (interfaces) of the process tracker.

These interfaces decouple the registry from durable storage, from observer delivery
and from the scheduling of background work.

# Key Interfaces

  - SnapshotStore: persists and loads the JSON snapshot of a finished process.
  - Broadcaster: delivers a payload to every observer subscribed to a topic.
  - Executor: runs fire-and-forget tasks off the caller's goroutine.
  - DistributedLocker: claims keys across replicas, used for process names.

RunSnapshotStoreContract checks any SnapshotStore implementation against the expected behaviour.
*/
package ports
