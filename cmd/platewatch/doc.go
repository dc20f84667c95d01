// Command platewatch queues surveillance videos, runs the vehicle and
// license plate extraction pipeline, and manages the resulting job queue.
package main
