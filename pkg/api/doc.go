/*
Package api implements the content server's HTTP surface (spec.md §6)
over a deploy.Service: entity resolution, deployment upload, content and
audit retrieval, pointer and history queries, and the status endpoint.

Routing uses github.com/go-chi/chi/v5 and a permissive go-chi/cors
policy for cross-origin reads, matching the libraries SPEC_FULL.md names
for this layer. Multipart upload parsing is the standard library's own
net/http.Request.ParseMultipartForm, kept to the minimum needed to build
a deploy.DeployRequest — per spec.md §1 this layer is an external
collaborator around the core engine, not a place to grow business logic.

Server never imports pkg/pointer, pkg/history, or pkg/storage directly;
everything it needs is reachable through the deploy.Service interface,
so a blacklist.Overlay can be substituted transparently.
*/
package api
