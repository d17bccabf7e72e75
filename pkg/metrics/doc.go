/*
Package metrics registers the content server's Prometheus metrics and exposes
them over /metrics via promhttp.

Metrics are grouped by the component that updates them: deployments and
validation failures from pkg/deploy, pointer commit outcomes from
pkg/pointer, sync cycle outcomes from pkg/sync, and request counts/durations
from pkg/api. All metrics are package-level vars registered at init, the
same pattern the wider catalog follows, so callers never need to pass a
registry around.

Timer is a small helper for recording operation duration to a histogram
without hand-writing time.Since at every call site.
*/
package metrics
