// Package task runs the asynchronous half of the pipeline. It defines the
// queue message, the Processor that cleans a text, counts its words and
// detects its language, the Worker that drives the Processor from broker
// deliveries, and the Relay that republishes outbox messages the admission
// path could not publish.
//
// A delivery is acknowledged only after its result has been persisted, so a
// crash before the write leads to redelivery. Persistence is idempotent, which
// makes redelivered messages harmless.
package task
