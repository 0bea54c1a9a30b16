// Package pipeline composes the admission controller and the execution
// sandbox into the request path: check, then run, then record. Identity
// and tier arrive already resolved (authentication and tier lookup are the
// caller's collaborators), and usage recording is a one-way sink whose
// failures never propagate back into the request.
package pipeline
