// Package command models the requests the bridge accepts, the envelope it
// answers with, and the registry that maps command names to handlers.
package command

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
)

// Kind tags a request with the command it targets.
type Kind string

const (
	KindNavigate Kind = "navigate"
	KindCollect  Kind = "collect"
)

// Request is the decoded payload of one command. It is not modified after
// decoding.
type Request struct {
	Kind       Kind     `json:"-" cbor:"-"`
	Path       string   `json:"path,omitempty" cbor:"path,omitempty"`
	Scope      string   `json:"scope,omitempty" cbor:"scope,omitempty"`
	Project    string   `json:"projectPath,omitempty" cbor:"projectPath,omitempty"`
	OutputPath string   `json:"outputPath,omitempty" cbor:"outputPath,omitempty"`
	Kinds      []string `json:"kinds,omitempty" cbor:"kinds,omitempty"`
}

// ScopeDir returns the requested scope. projectPath is accepted as an older
// spelling of scope.
func (r Request) ScopeDir() string {
	if scope := strings.TrimSpace(r.Scope); scope != "" {
		return scope
	}
	return strings.TrimSpace(r.Project)
}

// DecodeError is a request problem answered immediately with Status.
type DecodeError struct {
	Status  int
	Message string
}

func (e *DecodeError) Error() string {
	return e.Message
}

// BadRequest builds a 400 DecodeError.
func BadRequest(format string, args ...any) *DecodeError {
	return &DecodeError{Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// AsDecodeError extracts a DecodeError from err.
func AsDecodeError(err error) (*DecodeError, bool) {
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		return decodeErr, true
	}
	return nil, false
}

// Decode parses body according to contentType. JSON is the default;
// application/cbor selects CBOR.
func Decode(kind Kind, contentType string, body []byte) (Request, error) {
	var req Request
	if len(bytes.TrimSpace(body)) == 0 {
		return req, BadRequest("empty body")
	}
	if IsCBOR(contentType) {
		if err := UnmarshalCBOR(body, &req); err != nil {
			return Request{}, BadRequest("invalid CBOR: %v", err)
		}
	} else {
		if err := json.Unmarshal(body, &req); err != nil {
			return Request{}, BadRequest("invalid JSON: %v", err)
		}
	}
	req.Kind = kind
	req.normalize()
	if err := req.Validate(); err != nil {
		return Request{}, err
	}
	return req, nil
}

func (r *Request) normalize() {
	r.Path = strings.TrimSpace(r.Path)
	r.Scope = strings.TrimSpace(r.Scope)
	r.Project = strings.TrimSpace(r.Project)
	r.OutputPath = strings.TrimSpace(r.OutputPath)
	kinds := r.Kinds[:0]
	for _, k := range r.Kinds {
		if k = strings.TrimSpace(k); k != "" {
			kinds = append(kinds, k)
		}
	}
	r.Kinds = kinds
}

// Validate checks the fields each kind requires.
func (r Request) Validate() error {
	switch r.Kind {
	case KindNavigate:
		if r.Path == "" {
			return BadRequest("path is required")
		}
	case "":
		return BadRequest("command kind is required")
	}
	return nil
}

// IsCBOR reports whether a Content-Type or Accept value names CBOR.
func IsCBOR(header string) bool {
	for _, part := range strings.Split(header, ",") {
		mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		if mediaType == MediaTypeCBOR {
			return true
		}
	}
	return false
}
