/*
Package domain contains the data model of a tracked process.

A Process is the root of a tree of Steps. Both carry a status, timing information
and an append-only log. The package is kept free of I/O and synchronisation: the
registry owns the locking, the adapters own persistence.

# Key Entities

  - Process: one tracked top-level operation, keyed by its name in the registry.
  - Step: one unit of work inside a process; steps nest arbitrarily deep.
  - LogBuffer: the append-only text accumulated by a process or a step.
  - Event: the envelope pushed to observers subscribed to a topic.
*/
package domain
