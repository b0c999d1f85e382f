// Package preflight provides readiness checks for the filesystem paths and
// the catalog a sync pass depends on.
//
// These checks run in two contexts:
//   - The workflow manager calls RunAll before planning a non-dry-run pass.
//     If any check fails, the pass aborts before touching the target.
//   - The CLI "packsync status" command shows the same checks together with
//     CheckCatalog.
package preflight
