// Package logs reads the packsync log file for the `logs` command: the last
// lines of the file, optionally narrowed to one pass or item, and a polling
// follow mode that picks up lines as a running pass appends them.
package logs
