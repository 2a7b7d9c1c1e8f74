package command

import "github.com/kingrea/editorbridge/internal/collect"

// UnknownCommand is the message for paths no command answers.
const UnknownCommand = "unknown command"

// Response is written exactly once per request.
type Response struct {
	Success bool            `json:"success" cbor:"success"`
	Message string          `json:"message" cbor:"message"`
	RunID   string          `json:"runId,omitempty" cbor:"runId,omitempty"`
	Counts  *collect.Counts `json:"counts,omitempty" cbor:"counts,omitempty"`
}

// Failure builds a success=false envelope.
func Failure(message string) Response {
	return Response{Success: false, Message: message}
}
