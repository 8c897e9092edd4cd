/*
Package stream provides the event stream used to decouple side effects from request handling.

# Design Priorities

  - Delivery is synchronous. When [Stream.Commit] returns, every [Transport] registered at the time of the call has seen the event, unless one failed.
  - Delivery is ordered. Transports receive events in the order they were registered with [Stream.AddTransport].
  - Failures are transparent. The first failing [Transport] halts delivery and its error is returned to the committing code as a [TransportDeliveryError].
  - Nothing is retained. A [Stream] has no history, so a transport registered after a commit never sees that event.

# Transports

A [Transport] is anything with a Deliver method, and [TransportFunc] adapts a plain function.
Registering the same [Transport] twice is allowed, and it will receive every event twice.

Transports don't isolate one another.
Wrap a [Transport] with [Isolate] to report its errors elsewhere and keep the fan-out going.

A few transports are provided:
  - [LogTransport] writes every event to a [*slog.Logger], which makes a simple audit trail.
  - [Recorder] captures events in memory, and is intended for tests.
  - The wsfeed sub-package forwards events to websocket subscribers.

# Event Context

Each [Event] carries a context map with arbitrary values.
Use [ContextValue] to extract a typed value without repeating type assertions in every transport.
*/
package stream
