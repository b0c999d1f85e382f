// Package services defines shared utilities consumed by the sync pipeline
// stages and the catalog integration.
//
// Key responsibilities:
//   - Context helpers that stamp pass IDs, catalog item IDs, stage names, and
//     attempt counters for logging.
//   - Structured error markers plus the Wrap helper so every stage reports
//     failures with the same taxonomy (download, corrupt archive, rejected
//     entry, write, store, catalog unavailable, cancelled).
//   - KindOf and Retryable, which the orchestrator uses to decide whether an
//     item gets another attempt within the current pass.
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
