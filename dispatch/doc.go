/*
Package dispatch provides the single entry point that turns a request into a response.

A [Service] owns an install state machine with three states: [Uninitialized], [Installing], and [Ready].
The first call to [Service.Process] (or an explicit [Service.Install]) runs the install sequence exactly once, even when many goroutines race on it.

# Install Sequence

  - The [stream.Stream] is bound to [registry.KeyStream], unless the key is already bound.
  - Every key in [Config.RequiredKeys] must resolve from the registry.
  - Database options and the cache connection URL from [Config] are published to the registry, rewritten to throwaway endpoints when [Config.Ephemeral] is set.
  - If [Config.InstallRoute] is enabled, a synthetic "POST /install?jwt=<token>" request is handled, and its status must be one of [InstallStatuses].
  - The "rest.install" event is committed on the [stream.Stream] with an empty payload.

If any step fails, then an [*InstallError] is returned and the [Service] is unusable: it stays in [Installing], and every later call returns the same error.
[New] never touches the registry, so every registry write happens under the install guard.
Installation is never retried automatically. Callers that expect transient failures should build a new [Service] for each attempt.

# Request Handling

Handlers are bound in the registry under [registry.RouteKey], and [Bind] is a shorthand for this.
A request for a route with no handler fails with a [*registry.ResolutionError], which leaves the [Service] usable.
Each handled request commits a "rest.process" event.
*/
package dispatch
