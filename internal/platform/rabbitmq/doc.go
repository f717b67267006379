// Package rabbitmq is the broker client for the task queue. It owns the AMQP
// connection lifecycle: dialing with a bounded retry policy, declaring the
// durable task queue and its dead-letter queue, publishing persistent JSON
// messages and handing out a manually acknowledged delivery stream.
package rabbitmq
