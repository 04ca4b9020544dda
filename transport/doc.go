// Package transport describes the boundary between the query
// engine and whatever moves pages over the wire. The engine
// only needs one operation: fetch the next page of a partition
// key range given the state returned with the previous page.
// Implementations may speak gRPC, REST or something else; the
// engine only cares about the error contract described here:
// splits are reported with *SplitError, transient failures are
// recognizable with IsTransient and everything else is fatal.
package transport
