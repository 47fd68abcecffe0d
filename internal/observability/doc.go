// Package observability builds the process logger and carries request
// scoped fields through context.
package observability
