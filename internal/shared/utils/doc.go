// Package utils provides input validation shared by the API and the
// scenario loader.
//
// Names and identifiers are checked for length, UTF-8 validity and control
// characters before they reach the event log. Payloads are capped at
// MaxPayloadSize.
package utils
