/*
Package validation implements the deployment Validation predicate set
(C4): a collection of pure, composable rules over a prospective
deployment, each returning human-readable error strings rather than
throwing. The deploy orchestrator (pkg/deploy) runs every rule and
collects all errors before deciding, so a client sees every problem with
a submission at once instead of one at a time.

Rules are plain functions of Args, which bundles the
deployment itself, the server's Env (ttl bounds, upload caps, feature
flags), and ExternalCalls — the capabilities record spec.md §9 asks for
in place of a dynamic dependency-injection object.
*/
package validation
