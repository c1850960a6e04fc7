// Package batch fans chunks of animal IDs out to a fixed pool of workers.
//
// The ID list is cut into consecutive chunks of at most BatchSize IDs. All
// chunks are placed on a shared queue which is then closed; each of the
// Workers goroutines pulls chunks until the queue is drained. Per chunk a
// worker fetches every detail record in order, transforms them and posts the
// result as one batch.
//
// Failures below the chunk boundary (one fetch, one transform) are counted and
// dropped. Failures at the chunk boundary (post rejected, nothing to post) are
// logged and the worker moves on. Nothing a chunk does can stop the run.
//
// Chunks complete in no particular order. Within a chunk the ID order is kept
// from fetch through post.
//
// Cancelling the context stops workers from starting new chunks. Chunks already
// being processed run to completion with a context detached from cancellation,
// so in-flight requests are not aborted.
package batch
