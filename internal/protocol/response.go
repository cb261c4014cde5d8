package protocol

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/myrjola/dossier/internal/models"
)

// Response is the JSON-serializable result of one request. It is either a success payload or an ErrorResponse.
type Response interface {
	isResponse()
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type DossierResponse struct {
	Success bool            `json:"success"`
	Dossier *models.Dossier `json:"dossier"`
}

type DeletedResponse struct {
	Success bool   `json:"success"`
	Deleted string `json:"deleted"`
}

type ListResponse struct {
	Success  bool             `json:"success"`
	Dossiers []models.Dossier `json:"dossiers"`
	Count    int              `json:"count"`
}

type ToolsResponse struct {
	Tools []mcp.Tool `json:"tools"`
}

type ResourcesResponse struct {
	Resources []mcp.Resource `json:"resources"`
}

func (ErrorResponse) isResponse()     {}
func (DossierResponse) isResponse()   {}
func (DeletedResponse) isResponse()   {}
func (ListResponse) isResponse()      {}
func (ToolsResponse) isResponse()     {}
func (ResourcesResponse) isResponse() {}

// NewErrorResponse creates an error response with a short message.
func NewErrorResponse(msg string) ErrorResponse {
	return ErrorResponse{Error: msg}
}
