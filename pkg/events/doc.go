/*
Package events is an in-memory pub/sub broker used to fan out content
server lifecycle notifications to whatever wants to observe them. The
only publisher is pkg/deploy, which publishes EventEntityDeployed; the
only subscribers are tests.

Publish is non-blocking and delivery is best effort: a full broker queue
or a full subscriber buffer drops that event rather than stalling the
publisher. This is not
the audit trail — pkg/history is — it's for observability.

Publish assigns Event.ID via github.com/google/uuid when the caller
leaves it blank, the same library the teacher uses for its own
resource/event identifiers.
*/
package events
