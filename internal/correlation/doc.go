// Package correlation makes request/response calls over publish/subscribe.
//
// A call moves Idle -> Published -> Resolved or TimedOut:
//
//	listener := hub.Listen(topic == response && Pair(request, frame))
//	subscribe(response topic)        // no-op when already covered
//	publish(request topic, frame)
//	select { listener.C | timer | ctx.Done }
//	listener.Close()
//
// Calls sharing a LockKey (a DTU serial number) run one at a time, since
// the field bus behind a DTU is half-duplex and two answers could
// otherwise be mistaken for each other. Calls to different DTUs run in
// parallel.
package correlation
