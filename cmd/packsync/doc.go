// Package main hosts the packsync CLI entrypoint and command graph.
//
// The Cobra command tree resolves configuration, builds the catalog client,
// extraction pipeline and state store, and hands them to the workflow
// manager. Commands render results as tables; the heavy lifting lives in the
// internal packages.
package main
