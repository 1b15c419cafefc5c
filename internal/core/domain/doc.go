// Package domain defines the core domain models for docmesh.
//
// Domain models are pure value objects without any IO dependencies or
// framework coupling. This package contains:
//
//   - Identifiers: AccountID, Collection, DocumentID
//   - LogPosition: a (term, index) pair naming one replicated log entry
//   - Document: the stored content and tags of one record
//   - Errors: domain-specific error definitions
package domain
