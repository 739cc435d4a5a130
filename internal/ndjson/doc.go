// Package ndjson frames byte streams into newline-delimited JSON lines.
//
// A Splitter turns arbitrarily chunked input into complete lines no matter
// where the chunk boundaries fall. A Reader drives a Splitter from an
// io.Reader and checks each line is valid UTF-8. CountingReader tracks bytes
// consumed for progress reporting.
package ndjson
