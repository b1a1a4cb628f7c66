// Package queue serializes valve position writes from every controller onto
// the shared, rate-limited radio transports.
//
// At most one entry is pending per actuator: a newer request replaces the
// value of an older one but keeps its place in line. Drains pop the oldest
// entry and dispatch it asynchronously, one at a time. A drain does nothing
// while:
//   - the queue is empty
//   - a dispatch is still in flight
//   - the minimum spacing since the last dispatch has not passed
//   - the transport duty cycle is above its ceiling
//   - the weekly valve decalcification blackout is running
//
// A failed entry goes to the back of the line unless a newer request for
// the same actuator arrived while it was in flight.
//
// Dispatches outlive the context that enqueued them. Cancellation of that
// context is ignored; Options.DispatchTimeout bounds each write.
//
// # Usage
//
//	q := queue.New(queue.Options{Interval: 10 * time.Second, Blackout: blackout})
//	q.OnDepth(func(n int) { gauge.Set(float64(n)) })
//	go q.Run(ctx)
//	q.Enqueue(ctx, proxy, 40, false)
package queue
