package protocol

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/myrjola/dossier/internal/errors"
	"github.com/xeipuuv/gojsonschema"
)

// ToolName enumerates the tools served by the dispatcher.
type ToolName string

const (
	ToolGet    ToolName = "dossier_get"
	ToolCreate ToolName = "dossier_create"
	ToolUpdate ToolName = "dossier_update"
	ToolDelete ToolName = "dossier_delete"
	ToolList   ToolName = "dossier_list"
)

// toolNames lists every tool in catalogue order.
var toolNames = []ToolName{ToolGet, ToolCreate, ToolUpdate, ToolDelete, ToolList}

// ParseToolName reports whether name is a known tool.
func ParseToolName(name string) (ToolName, bool) {
	for _, tool := range toolNames {
		if string(tool) == name {
			return tool, true
		}
	}
	return "", false
}

const (
	resourceScheme  = "dossier://"
	resourcePattern = resourceScheme + "*"
	mimeTypeJSON    = "application/json"
)

func newTool(name ToolName) mcp.Tool {
	switch name {
	case ToolGet:
		return mcp.NewTool(string(name),
			mcp.WithDescription("Retrieve a player dossier by id"),
			withDossierID("Id of the dossier"),
			mcp.WithReadOnlyHintAnnotation(true),
		)
	case ToolCreate:
		return mcp.NewTool(string(name),
			mcp.WithDescription("Create a new player dossier"),
			withDossierID("Unique id of the new dossier"),
			mcp.WithString("player_name", mcp.Required(), mcp.Description("Display name of the player")),
			mcp.WithObject("data", mcp.Description("Initial free-form payload, defaults to an empty object")),
			mcp.WithReadOnlyHintAnnotation(false),
			mcp.WithDestructiveHintAnnotation(false),
		)
	case ToolUpdate:
		return mcp.NewTool(string(name),
			mcp.WithDescription("Apply a JSON Merge Patch (RFC 7396) to the data of a dossier"),
			withDossierID("Id of the dossier"),
			mcp.WithObject("patch", mcp.Required(), mcp.Description("Merge patch; null members delete keys")),
			mcp.WithReadOnlyHintAnnotation(false),
			mcp.WithDestructiveHintAnnotation(true),
		)
	case ToolDelete:
		return mcp.NewTool(string(name),
			mcp.WithDescription("Delete a player dossier"),
			withDossierID("Id of the dossier"),
			mcp.WithReadOnlyHintAnnotation(false),
			mcp.WithDestructiveHintAnnotation(true),
			mcp.WithIdempotentHintAnnotation(true),
		)
	case ToolList:
		return mcp.NewTool(string(name),
			mcp.WithDescription("List all player dossiers, most recently updated first"),
			mcp.WithReadOnlyHintAnnotation(true),
		)
	}
	panic(fmt.Sprintf("no descriptor for tool %q", name))
}

// withDossierID declares the required dossier_id argument. Empty ids are rejected so that every stored dossier can
// also be addressed as a resource.
func withDossierID(description string) mcp.ToolOption {
	return mcp.WithString("dossier_id", mcp.Required(), mcp.MinLength(1), mcp.Description(description))
}

// Tools returns the descriptors advertised by tools/list.
func Tools() []mcp.Tool {
	tools := make([]mcp.Tool, 0, len(toolNames))
	for _, name := range toolNames {
		tools = append(tools, newTool(name))
	}
	return tools
}

// Resources returns the resource patterns advertised by resources/list.
func Resources() []mcp.Resource {
	return []mcp.Resource{
		mcp.NewResource(resourcePattern, "Player dossier",
			mcp.WithResourceDescription("A single dossier addressed as dossier://<dossier_id>"),
			mcp.WithMIMEType(mimeTypeJSON),
		),
	}
}

// parseResourceURI extracts the dossier id from dossier://<id>.
func parseResourceURI(uri string) (string, bool) {
	id, found := strings.CutPrefix(uri, resourceScheme)
	if !found || id == "" {
		return "", false
	}
	return id, true
}

// argumentValidator validates tool arguments against the advertised input schemas.
type argumentValidator struct {
	schemas map[ToolName]*gojsonschema.Schema
}

func newArgumentValidator(tools []mcp.Tool) (*argumentValidator, error) {
	v := &argumentValidator{schemas: make(map[ToolName]*gojsonschema.Schema, len(tools))}
	for _, tool := range tools {
		raw, err := json.Marshal(tool.InputSchema)
		if err != nil {
			return nil, errors.Wrap(err, "marshal input schema")
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return nil, errors.Wrap(err, "compile input schema")
		}
		v.schemas[ToolName(tool.Name)] = schema
	}
	return v, nil
}

// validate returns the arguments as an object, or a short message describing the first violation.
func (v *argumentValidator) validate(name ToolName, arguments any) (map[string]any, string, error) {
	if arguments == nil {
		arguments = map[string]any{}
	}
	schema, ok := v.schemas[name]
	if !ok {
		return nil, "", errors.New("no input schema", slog.String("tool", string(name)))
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(arguments))
	if err != nil {
		return nil, "", errors.Wrap(err, "validate arguments")
	}
	if !result.Valid() {
		return nil, violationMessage(result.Errors()[0]), nil
	}
	args, ok := arguments.(map[string]any)
	if !ok {
		return nil, "arguments must be object", nil
	}
	return args, "", nil
}

func violationMessage(violation gojsonschema.ResultError) string {
	field := violation.Field()
	if field == gojsonschema.STRING_CONTEXT_ROOT {
		field = "arguments"
	}
	details := violation.Details()
	switch violation.Type() {
	case "required":
		return fmt.Sprintf("%v is required", details["property"])
	case "invalid_type":
		return fmt.Sprintf("%s must be %v", field, details["expected"])
	case "string_gte":
		return fmt.Sprintf("%s must not be empty", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
