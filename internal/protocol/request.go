package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/myrjola/dossier/internal/errors"
)

const (
	MethodListTools     = "tools/list"
	MethodListResources = "resources/list"
	MethodCallTool      = "tools/call"
	MethodReadResource  = "resources/read"
)

// Request is one decoded protocol request. The set of variants is closed:
// ListToolsRequest, ListResourcesRequest, CallToolRequest, ReadResourceRequest and UnknownRequest.
type Request interface {
	// Method returns the wire method name.
	Method() string
	isRequest()
}

type ListToolsRequest struct{}

type ListResourcesRequest struct{}

// CallToolRequest invokes the tool Name. Arguments is the undecoded-by-type JSON value of params.arguments and is
// validated against the tool's input schema before use.
type CallToolRequest struct {
	Name      string
	Arguments any
}

type ReadResourceRequest struct {
	URI string
}

// UnknownRequest carries a method that the dispatcher does not serve.
type UnknownRequest struct {
	Name string
}

func (ListToolsRequest) Method() string     { return MethodListTools }
func (ListResourcesRequest) Method() string { return MethodListResources }
func (CallToolRequest) Method() string      { return MethodCallTool }
func (ReadResourceRequest) Method() string  { return MethodReadResource }
func (r UnknownRequest) Method() string     { return r.Name }

func (ListToolsRequest) isRequest()     {}
func (ListResourcesRequest) isRequest() {}
func (CallToolRequest) isRequest()      {}
func (ReadResourceRequest) isRequest()  {}
func (UnknownRequest) isRequest()       {}

// ParseError reports a request envelope that is not valid JSON of the expected shape.
type ParseError struct {
	reason string
}

func (e *ParseError) Error() string {
	return "parse error: " + e.reason
}

type envelope struct {
	Method string         `json:"method"`
	Params map[string]any `json:"params"`
}

// Decode parses a request envelope {"method": ..., "params": {...}}.
//
// Only malformed JSON or an envelope that is not an object yields a *ParseError. Missing or mistyped params are left
// for the dispatcher to report so that they produce the usual validation messages.
func Decode(raw []byte) (Request, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var env envelope
	if err := dec.Decode(&env); err != nil {
		return nil, &ParseError{reason: describeDecodeError(err)}
	}
	if dec.More() {
		return nil, &ParseError{reason: "unexpected data after request object"}
	}

	switch env.Method {
	case MethodListTools:
		return ListToolsRequest{}, nil
	case MethodListResources:
		return ListResourcesRequest{}, nil
	case MethodCallTool:
		name, _ := env.Params["name"].(string)
		return CallToolRequest{Name: name, Arguments: env.Params["arguments"]}, nil
	case MethodReadResource:
		uri, _ := env.Params["uri"].(string)
		return ReadResourceRequest{URI: uri}, nil
	default:
		return UnknownRequest{Name: env.Method}, nil
	}
}

func describeDecodeError(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		if typeErr.Field == "" {
			return fmt.Sprintf("request must be an object, got %s", typeErr.Value)
		}
		return fmt.Sprintf("%s must not be %s", typeErr.Field, typeErr.Value)
	}
	return err.Error()
}
