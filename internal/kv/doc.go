// Package kv models the records moved between a key-value store and an
// NDJSON stream.
//
// # Keys
//
// A [Key] is an ordered sequence of typed [KeyPart] values. Parts of
// different kinds order as bytes < string < bigint < number < boolean, and
// [Key.Pack] produces a binary form whose byte order matches key order, so
// stores can range-scan packed keys directly.
//
// # Values
//
// A [Value] is a tagged union covering the kinds a store can hold that JSON
// cannot express natively: bigints, binary data, typed-key maps, sets, dates,
// regular expressions, errors and unsigned 64-bit counters.
//
// # Wire format
//
// Every key part and value encodes as
//
//	{"type": <tag>, "value": <payload>}
//
// and an [Entry] as
//
//	{"key": [...], "value": {...}, "versionstamp": "..."}
//
// [EncodeEntry] and [DecodeEntry] convert single entries; decode failures are
// reported as [*DecodeError].
package kv
