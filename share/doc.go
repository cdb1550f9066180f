// Package share publishes immutable session snapshots under short,
// URL-friendly identifiers. A share captures the conversation at creation
// time; later edits to the source session never leak into it. Shares can
// expire, be revoked by their owner, and be imported by another tenant as a
// fresh writable session.
package share
