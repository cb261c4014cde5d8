// Package protocol decodes protocol requests and dispatches them to the dossier store.
package protocol

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/myrjola/dossier/internal/errors"
	"github.com/myrjola/dossier/internal/mergepatch"
	"github.com/myrjola/dossier/internal/metrics"
	"github.com/myrjola/dossier/internal/models"
	"github.com/myrjola/dossier/internal/repositories"
)

// DossierStore is the persistence the dispatcher needs.
type DossierStore interface {
	Get(ctx context.Context, id string) (*models.Dossier, error)
	Create(ctx context.Context, dossier *models.Dossier) (*models.Dossier, error)
	Update(ctx context.Context, id string, newData models.Data) (*models.Dossier, error)
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context) ([]models.Dossier, error)
}

type outcome string

const (
	outcomeSuccess  outcome = "success"
	outcomeInvalid  outcome = "invalid"
	outcomeNotFound outcome = "not_found"
	outcomeConflict outcome = "conflict"
	outcomeUnknown  outcome = "unknown"
	outcomeStorage  outcome = "storage_error"
	outcomeInternal outcome = "internal_error"
)

// ErrInternal is returned by HandleRaw when the request failed for a reason the caller could not have caused, such
// as a handler panic. The response already carries the generic wire message.
var ErrInternal = errors.NewSentinel("internal error")

// Dispatcher routes requests to handlers. It holds no mutable state and is safe for concurrent use.
type Dispatcher struct {
	store     DossierStore
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tools     []mcp.Tool
	resources []mcp.Resource
	validator *argumentValidator
	now       func() time.Time
}

// NewDispatcher creates a dispatcher over store. metrics may be nil.
func NewDispatcher(store DossierStore, logger *slog.Logger, m *metrics.Metrics) (*Dispatcher, error) {
	tools := Tools()
	validator, err := newArgumentValidator(tools)
	if err != nil {
		return nil, errors.Wrap(err, "new argument validator")
	}
	return &Dispatcher{
		store:     store,
		logger:    logger,
		metrics:   m,
		tools:     tools,
		resources: Resources(),
		validator: validator,
		now:       time.Now,
	}, nil
}

// HandleRaw decodes raw and handles the request. The response is always usable. The error is a *ParseError for a
// malformed envelope or ErrInternal when handling failed unexpectedly.
func (d *Dispatcher) HandleRaw(ctx context.Context, raw []byte) (Response, error) {
	req, err := Decode(raw)
	if err != nil {
		d.logger.LogAttrs(ctx, slog.LevelDebug, "malformed request", slog.String("reason", err.Error()))
		d.record("", "", outcomeInvalid, 0)
		return NewErrorResponse(err.Error()), err
	}
	resp, result := d.handle(ctx, req)
	if result == outcomeInternal {
		return resp, ErrInternal
	}
	return resp, nil
}

// Handle serves one request. It never panics: handler panics are logged and reported as an internal error.
func (d *Dispatcher) Handle(ctx context.Context, req Request) Response {
	resp, _ := d.handle(ctx, req)
	return resp
}

func (d *Dispatcher) handle(ctx context.Context, req Request) (resp Response, result outcome) {
	var (
		start  = time.Now()
		method string
		tool   string
	)
	if req != nil {
		method = req.Method()
	}
	if call, ok := req.(CallToolRequest); ok {
		tool = call.Name
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.LogAttrs(ctx, slog.LevelError, "panic while handling request",
				slog.String("method", method),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			resp = NewErrorResponse("internal error")
			result = outcomeInternal
		}
		duration := time.Since(start)
		d.logger.LogAttrs(ctx, slog.LevelDebug, "handled request",
			slog.String("method", method),
			slog.String("tool", tool),
			slog.String("outcome", string(result)),
			slog.Duration("duration", duration))
		d.record(method, tool, result, duration)
	}()

	switch r := req.(type) {
	case ListToolsRequest:
		return ToolsResponse{Tools: d.tools}, outcomeSuccess
	case ListResourcesRequest:
		return ResourcesResponse{Resources: d.resources}, outcomeSuccess
	case CallToolRequest:
		return d.callTool(ctx, r)
	case ReadResourceRequest:
		return d.readResource(ctx, r)
	case UnknownRequest:
		return NewErrorResponse(fmt.Sprintf("unknown method: %s", r.Name)), outcomeUnknown
	default:
		return NewErrorResponse(fmt.Sprintf("unknown method: %s", method)), outcomeUnknown
	}
}

func (d *Dispatcher) record(method, tool string, result outcome, duration time.Duration) {
	if d.metrics == nil {
		return
	}
	d.metrics.RecordRequest(method, tool, string(result), duration)
}

func (d *Dispatcher) callTool(ctx context.Context, req CallToolRequest) (Response, outcome) {
	if req.Name == "" {
		return NewErrorResponse("name is required"), outcomeInvalid
	}
	name, ok := ParseToolName(req.Name)
	if !ok {
		return NewErrorResponse(fmt.Sprintf("unknown tool: %s", req.Name)), outcomeUnknown
	}
	args, violation, err := d.validator.validate(name, req.Arguments)
	if err != nil {
		return d.internalFailure(ctx, err)
	}
	if violation != "" {
		return NewErrorResponse(violation), outcomeInvalid
	}

	switch name {
	case ToolGet:
		return d.getDossier(ctx, args["dossier_id"].(string)) //nolint:forcetypeassert // validated by schema
	case ToolCreate:
		return d.createDossier(ctx, args)
	case ToolUpdate:
		return d.updateDossier(ctx, args)
	case ToolDelete:
		return d.deleteDossier(ctx, args["dossier_id"].(string)) //nolint:forcetypeassert // validated by schema
	case ToolList:
		return d.listDossiers(ctx)
	}
	return NewErrorResponse(fmt.Sprintf("unknown tool: %s", req.Name)), outcomeUnknown
}

func (d *Dispatcher) readResource(ctx context.Context, req ReadResourceRequest) (Response, outcome) {
	if req.URI == "" {
		return NewErrorResponse("uri is required"), outcomeInvalid
	}
	id, ok := parseResourceURI(req.URI)
	if !ok {
		return NewErrorResponse(fmt.Sprintf("invalid resource uri: %s", req.URI)), outcomeInvalid
	}
	return d.getDossier(ctx, id)
}

func (d *Dispatcher) getDossier(ctx context.Context, id string) (Response, outcome) {
	dossier, err := d.store.Get(ctx, id)
	if err != nil {
		return d.storeFailure(ctx, err, id)
	}
	return DossierResponse{Success: true, Dossier: dossier}, outcomeSuccess
}

func (d *Dispatcher) createDossier(ctx context.Context, args map[string]any) (Response, outcome) {
	id, _ := args["dossier_id"].(string)
	playerName, _ := args["player_name"].(string)
	data, _ := args["data"].(map[string]any)

	dossier := models.NewDossier(id, playerName, data, d.now())
	created, err := d.store.Create(ctx, dossier)
	if err != nil {
		return d.storeFailure(ctx, err, id)
	}
	return DossierResponse{Success: true, Dossier: created}, outcomeSuccess
}

// updateDossier reads the current data, merges the patch and writes the result back. Concurrent updates of the
// same dossier are last-writer-wins.
func (d *Dispatcher) updateDossier(ctx context.Context, args map[string]any) (Response, outcome) {
	id, _ := args["dossier_id"].(string)
	patch, _ := args["patch"].(map[string]any)

	current, err := d.store.Get(ctx, id)
	if err != nil {
		return d.storeFailure(ctx, err, id)
	}
	newData := mergepatch.ApplyObject(current.Data, patch)
	updated, err := d.store.Update(ctx, id, newData)
	if err != nil {
		return d.storeFailure(ctx, err, id)
	}
	return DossierResponse{Success: true, Dossier: updated}, outcomeSuccess
}

func (d *Dispatcher) deleteDossier(ctx context.Context, id string) (Response, outcome) {
	removed, err := d.store.Delete(ctx, id)
	if err != nil {
		return d.storeFailure(ctx, err, id)
	}
	if !removed {
		return NewErrorResponse(fmt.Sprintf("dossier not found: %s", id)), outcomeNotFound
	}
	return DeletedResponse{Success: true, Deleted: id}, outcomeSuccess
}

func (d *Dispatcher) listDossiers(ctx context.Context) (Response, outcome) {
	dossiers, err := d.store.List(ctx)
	if err != nil {
		return d.storeFailure(ctx, err, "")
	}
	if dossiers == nil {
		dossiers = []models.Dossier{}
	}
	return ListResponse{Success: true, Dossiers: dossiers, Count: len(dossiers)}, outcomeSuccess
}

// storeFailure maps a repository error to its wire message. Unexpected errors are logged in full but reported
// only as a storage error.
func (d *Dispatcher) storeFailure(ctx context.Context, err error, id string) (Response, outcome) {
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		return NewErrorResponse(fmt.Sprintf("dossier not found: %s", id)), outcomeNotFound
	case errors.Is(err, repositories.ErrConflict):
		return NewErrorResponse(fmt.Sprintf("dossier already exists: %s", id)), outcomeConflict
	default:
		d.logger.LogAttrs(ctx, slog.LevelError, "storage failure",
			slog.String("dossier_id", id), errors.SlogError(err))
		return NewErrorResponse("storage error"), outcomeStorage
	}
}

func (d *Dispatcher) internalFailure(ctx context.Context, err error) (Response, outcome) {
	d.logger.LogAttrs(ctx, slog.LevelError, "internal failure", errors.SlogError(err))
	return NewErrorResponse("internal error"), outcomeInternal
}
