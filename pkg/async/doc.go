// Package async provides goroutine helpers for work that runs after a
// request has been answered: activity logging and webhook delivery.
//
// SafeGo runs one function with panic recovery and a timeout, detached from
// the request's cancellation. WorkerPool bounds concurrency and queue depth
// for a stream of jobs and drains on Shutdown.
package async
