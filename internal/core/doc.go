// Package core moves entries between a store.Store and NDJSON streams.
//
// This package holds the import and export pipelines independent of any
// transport. It is used by the HTTP server, the kvutil CLI and tests alike.
//
// # Export
//
// [ExportEntries] turns a store listing into a lazy sequence of NDJSON
// lines. The next entry is read from the store only after the consumer has
// taken the previous line, so a slow writer slows the listing down rather
// than buffering it. [WriteEntries] and [ServeExport] wrap the sequence for
// an io.Writer and an HTTP response.
//
// # Import
//
// [ImportEntries] reads one line at a time and for each:
//
//  1. decodes the entry, counting the line
//  2. prepends the configured prefix to its key
//  3. skips it if the key already holds a value, unless overwriting
//  4. writes the value
//  5. reports progress, then checks the context for cancellation
//
// A line that fails to decode or write is counted in ImportResult.Errors
// and reported through ImportOptions.OnError; the import carries on unless
// ImportOptions.ThrowOnError is set. A failing byte source ends the import
// with a [*StreamError].
//
// # Async imports
//
// [Service] runs imports in the background for the HTTP surface with a
// bounded number of concurrent jobs ([ImportLimiter]), progress
// subscriptions and cancellation.
//
// # Error Handling
//
// Errors shown to users go through [MapError], which maps technical errors
// to messages with support codes. See error_messages.go for the codes.
package core
