package ndjson

import (
	"mime"
	"strings"
)

// MediaType is the content type written for NDJSON output.
const MediaType = "application/x-ndjson"

// FileExtension is appended to download filenames.
const FileExtension = ".ndjson"

// mediaTypes lists every content type accepted as NDJSON input.
var mediaTypes = map[string]bool{
	MediaType:                true,
	"application/jsonl":      true,
	"application/json-lines": true,
}

// IsMediaType reports whether a Content-Type header names NDJSON. Parameters
// such as charset are ignored.
func IsMediaType(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.TrimSpace(contentType)
	}
	return mediaTypes[strings.ToLower(mt)]
}
