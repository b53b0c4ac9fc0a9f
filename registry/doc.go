// Package registry owns the process mapping from opaque integer handles to
// live sockets.
//
// Handles are positive, monotonically assigned, and never reused after
// removal, so a stale handle held by a host application can never resolve
// to a different socket than the one it was issued for.
package registry
