// Package content defines the request and artifact types shared across the
// generation pipeline, cache, and Q&A layers. An Explanation is immutable
// once produced; a changed request always yields a new instance.
package content
