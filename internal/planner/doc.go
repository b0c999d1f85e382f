// Package planner turns a catalog snapshot and the state store into the
// ChangeSet a sync pass processes. Planning only reads the store.
package planner
