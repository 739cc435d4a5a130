// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support reference.
// When users encounter errors, they can quote the error code to support staff
// for faster diagnosis.
//
// Error codes are grouped by category:
//
// # Decode Errors (DEC001-DEC099)
//
// Errors raised while turning an NDJSON line into an entry:
//
//	DEC001 - Unknown type: The line uses a value or key type that is not supported
//	         Action: Check the "type" fields of the failed line
//	         Patterns: "unknown type tag"
//
//	DEC002 - Malformed value: A value does not match its declared type
//	         Action: Check the "value" fields of the failed line
//	         Patterns: "malformed payload"
//
//	DEC003 - Encoding error: The line is not valid UTF-8
//	         Action: Save the file as UTF-8
//	         Patterns: "invalid utf-8"
//
//	DEC004 - Invalid line: The line is not a JSON object
//	         Action: Make sure every line holds exactly one entry
//	         Patterns: "decode entry"
//
//	DEC005 - Key too large: A bigint key part exceeds 255 bytes
//	         Action: Use a smaller key
//	         Patterns: "key too large"
//
// # Store Errors (STO001-STO099)
//
// Errors returned by the KV store:
//
//	STO001 - Store closed: The store is no longer available
//	         Action: Restart the export or import
//	         Patterns: "store is closed"
//
//	STO002 - Value too large: A value exceeds the store limit (64 KiB)
//	         Action: Split large values across several keys
//	         Patterns: "value too large"
//
//	STO003 - Invalid selector: The requested key range is not valid
//	         Action: Use either a prefix or a start/end range inside the prefix
//	         Patterns: "invalid selector"
//
//	STO004 - Invalid cursor: The cursor does not belong to this listing
//	         Action: Start the listing again without a cursor
//	         Patterns: "invalid cursor"
//
//	STO005 - Connection refused: Unable to connect to the store
//	         Action: Please try again in a few moments
//	         Patterns: "connection refused", "connection reset"
//
//	STO006 - Timeout: A store operation timed out
//	         Action: Please try again later
//	         Patterns: "timeout"
//
//	STO007 - Not found: No entry exists at the key
//	         Action: Check the key parts and their types
//	         Patterns: "entry not found"
//
// # Import Errors (IMP001-IMP099)
//
// Errors related to running imports:
//
//	IMP001 - Source error: The import source could not be read to the end
//	         Action: Check the file or connection and import again
//	         Patterns: "read import source"
//
//	IMP002 - System busy: Too many imports in progress
//	         Action: Please wait a moment and try again
//	         Patterns: "too many concurrent imports"
//
//	IMP003 - Import not found: The import ID is unknown or expired
//	         Action: Results are kept for a few minutes. Start a new import
//	         Patterns: "import not found"
//
//	IMP004 - Cancelled: The import or request was cancelled
//	         Action: Start a new import when ready
//	         Patterns: "context canceled"
//
//	IMP005 - Timed out: The import took too long
//	         Action: Split the file or raise the import timeout
//	         Patterns: "import timed out", "context deadline exceeded"
//
// # Request Errors (REQ001-REQ099)
//
// Errors in HTTP requests:
//
//	REQ001 - No file: No file was sent
//	         Action: Send the NDJSON as the request body or a "file" form field
//	         Patterns: "no file provided"
//
//	REQ002 - File too large: The upload exceeds the size limit
//	         Action: Split the file into smaller chunks
//	         Patterns: "request body too large"
//
//	REQ003 - Bad request: A request parameter is invalid
//	         Action: Check the query parameters
//	         Patterns: "invalid parameter"
//
//	REQ004 - Unsupported media type: The body is not NDJSON
//	         Action: Send Content-Type application/x-ndjson or a multipart form
//	         Patterns: "unsupported media type"
//
// # Rate Limiting (RATE001-RATE099)
//
//	RATE001 - Rate limited: Too many requests
//	          Action: Please wait a moment before trying again
//	          Patterns: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when no specific pattern matches:
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Please try again or contact support
//
// # Pattern Matching
//
// Error patterns are matched case-insensitively using strings.Contains.
// The first matching pattern wins, so more specific patterns should be
// defined before general ones.

package core

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// Patterns are matched using strings.Contains, so partial matches work.
// The first matching pattern wins, so order matters:
//   - More specific patterns should come before general ones
//   - Multiple patterns can map to the same error code
var errorPatterns = []errorPattern{
	// =========================================================================
	// Decode Errors (DEC001-DEC005)
	// =========================================================================
	{
		pattern: "unknown type tag",
		msg: UserMessage{
			Message: "The line uses a type that is not supported",
			Action:  "Check the \"type\" fields of the failed line",
			Code:    "DEC001",
		},
	},
	{
		pattern: "malformed payload",
		msg: UserMessage{
			Message: "A value does not match its declared type",
			Action:  "Check the \"value\" fields of the failed line",
			Code:    "DEC002",
		},
	},
	{
		pattern: "invalid utf-8",
		msg: UserMessage{
			Message: "The line is not valid UTF-8",
			Action:  "Save the file as UTF-8",
			Code:    "DEC003",
		},
	},
	{
		pattern: "key too large",
		msg: UserMessage{
			Message: "A key part is too large to store",
			Action:  "Bigint key parts are limited to 255 bytes; use a smaller key",
			Code:    "DEC005",
		},
	},
	{
		pattern: "decode entry",
		msg: UserMessage{
			Message: "The line is not a valid entry",
			Action:  "Make sure every line holds exactly one JSON entry",
			Code:    "DEC004",
		},
	},

	// =========================================================================
	// Store Errors (STO001-STO007)
	// =========================================================================
	{
		pattern: "store is closed",
		msg: UserMessage{
			Message: "The store is no longer available",
			Action:  "Restart the export or import",
			Code:    "STO001",
		},
	},
	{
		pattern: "value too large",
		msg: UserMessage{
			Message: "A value exceeds the store limit (64 KiB)",
			Action:  "Split large values across several keys",
			Code:    "STO002",
		},
	},
	{
		pattern: "invalid selector",
		msg: UserMessage{
			Message: "The requested key range is not valid",
			Action:  "Use either a prefix or a start/end range inside the prefix",
			Code:    "STO003",
		},
	},
	{
		pattern: "invalid cursor",
		msg: UserMessage{
			Message: "The cursor does not belong to this listing",
			Action:  "Start the listing again without a cursor",
			Code:    "STO004",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to the store",
			Action:  "Please try again in a few moments",
			Code:    "STO005",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Store connection was interrupted",
			Action:  "Please try again",
			Code:    "STO005",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "A store operation timed out",
			Action:  "Please try again later",
			Code:    "STO006",
		},
	},
	{
		pattern: "entry not found",
		msg: UserMessage{
			Message: "No entry exists at this key",
			Action:  "Check the key parts and their types",
			Code:    "STO007",
		},
	},

	// =========================================================================
	// Import Errors (IMP001-IMP005)
	// =========================================================================
	{
		pattern: "read import source",
		msg: UserMessage{
			Message: "The import source could not be read to the end",
			Action:  "Check the file or connection and import again",
			Code:    "IMP001",
		},
	},
	{
		pattern: "too many concurrent imports",
		msg: UserMessage{
			Message: "System is busy processing other imports",
			Action:  "Please wait a moment and try again",
			Code:    "IMP002",
		},
	},
	{
		pattern: "import not found",
		msg: UserMessage{
			Message: "Import not found",
			Action:  "Results are kept for a few minutes. Start a new import",
			Code:    "IMP003",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "The import was cancelled",
			Action:  "Start a new import when ready",
			Code:    "IMP004",
		},
	},
	{
		pattern: "import timed out",
		msg: UserMessage{
			Message: "The import took too long",
			Action:  "Split the file or raise the import timeout",
			Code:    "IMP005",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "The request timed out",
			Action:  "Split the file or raise the import timeout",
			Code:    "IMP005",
		},
	},

	// =========================================================================
	// Request Errors (REQ001-REQ004)
	// =========================================================================
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was sent",
			Action:  "Send the NDJSON as the request body or a \"file\" form field",
			Code:    "REQ001",
		},
	},
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "The upload exceeds the size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "REQ002",
		},
	},
	{
		pattern: "invalid parameter",
		msg: UserMessage{
			Message: "A request parameter is invalid",
			Action:  "Check the query parameters",
			Code:    "REQ003",
		},
	},
	{
		pattern: "unsupported media type",
		msg: UserMessage{
			Message: "The request body is not NDJSON",
			Action:  "Send Content-Type application/x-ndjson or a multipart form",
			Code:    "REQ004",
		},
	},

	// =========================================================================
	// Rate Limiting (RATE001)
	// =========================================================================
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
// This is the fallback for unexpected errors. Support staff should check
// application logs for the original technical error when users report ERR000.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It searches through known error patterns (case-insensitive) and returns
// the first match. If no pattern matches, a generic fallback message with
// code ERR000 is returned.
//
// Example:
//
//	err := errors.New("store is closed")
//	msg := MapError(err)
//	// msg.Code == "STO001"
//	// msg.Message == "The store is no longer available"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
//
// Example output: "Import not found (Code: IMP003). Results are kept for a few minutes. Start a new import"
//
// This is the primary function for displaying errors to end users.
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing checks if an error matches a known pattern and should be shown to users.
// Returns true if the error matches a specific pattern (not the generic ERR000 fallback).
// Use this to decide whether to show the raw error or the mapped user message.
//
// Example:
//
//	if IsUserFacing(err) {
//	    showToUser(FormatUserError(err))
//	} else {
//	    log.Error(err) // Log technical error
//	    showToUser("An error occurred. Please try again.")
//	}
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	msg := MapError(err)
	return msg.Code != defaultMessage.Code
}

// WrapWithUserMessage wraps a technical error with a user-friendly message.
// The original error is preserved for logging while providing a clean message for users.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError creates a UserError by mapping a technical error to a user-friendly message.
// The returned UserError preserves the original technical error for logging via Unwrap(),
// while providing a clean user message via Error().
//
// Returns nil if err is nil.
//
// Example:
//
//	ue := NewUserError(storeErr)
//	log.Error(ue.Technical)          // Log original error
//	fmt.Println(ue.Error())           // Show "The store is no longer available"
//	fmt.Println(ue.User.Code)         // Show "STO001"
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
