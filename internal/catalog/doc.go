// Package catalog defines the item type advertised by the remote catalog and
// the Lister interface the sync pass consumes.
//
// Concrete listers live under internal/services; tests use ListerFunc or the
// fakes in internal/testsupport.
package catalog
