/*
Package accesscontrol defines the ACCESS validation predicate's
capability: checking whether an Ethereum address is authorized to
deploy against a (entity type, pointer) pair.

The production checker for this consults an external blockchain (land
registry, ENS ownership, etc.) and is explicitly out of scope of the
core; Checker is the seam that lets the deploy pipeline call it without
depending on that implementation. OwnerMapChecker is a small in-memory
implementation usable in tests and local/dev deployments.
*/
package accesscontrol
