// Package lifecycle manages registered drops for the lifetime of a pipeline.
//
// A [Manager] owns a [Registry] of drops grouped by logical id and runs a
// periodic sweep over it. Each sweep applies, per drop and in this order:
//
//  1. Existence check: a completed drop whose content is gone becomes Lost.
//  2. Expiry check: a completed drop older than its lifespan becomes Expired.
//  3. Cleanup check: a drop expired for at least CleanupPeriod has its
//     content deleted, becomes Deleted and leaves the registry.
//
// Replication of precious drops is driven by completion: AddDataObject
// subscribes the manager to each drop, and the [Policy] decides whether new
// copies are needed the moment the producer completes it. Sweeps retry
// replication that failed, a bounded number of times.
//
// Per-drop failures are logged and counted and never stop a sweep.
package lifecycle
