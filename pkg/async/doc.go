// Package async provides a bounded worker pool with per-task timeouts,
// panic recovery and lossless error collection.
//
// Batch runs a function over a slice with a fixed number of workers and
// returns one error per failed item, prefixed with the item. The snapshotter
// uses it to capture one snapshot per shop:
//
//	errs := async.Batch(ctx, shopIDs, 4, "daily snapshot", time.Minute, captureShop)
//
// Panics become errors and are logged with their stack through the logger
// installed with SetLogger. Items still queued when the context is cancelled
// are reported as skipped.
package async
