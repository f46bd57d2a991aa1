// Package protocol encodes outbound audio frames and decodes inbound recognition
// results for the streaming dictation websocket API.
package protocol
