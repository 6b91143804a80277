package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"digraph/internal/codec"
	"digraph/internal/command"
	"digraph/internal/domain"
	"digraph/internal/editor"
	"digraph/internal/geometry"
	"digraph/internal/persistence"
	"digraph/internal/service"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// maxBodyBytes bounds request bodies, imports included
const maxBodyBytes = 8 << 20

// GraphHandler handles graph API requests
type GraphHandler struct {
	session  *editor.Session
	logger   *zap.Logger
	validate *validator.Validate
}

// Option configures a GraphHandler
type Option func(*GraphHandler)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(h *GraphHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewGraphHandler creates a new graph handler
func NewGraphHandler(session *editor.Session, opts ...Option) *GraphHandler {
	h := &GraphHandler{
		session:  session,
		logger:   zap.NewNop(),
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the API routes on mux
func (h *GraphHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/graph", h.GetGraph)
	mux.HandleFunc("GET /api/history", h.GetHistory)

	mux.HandleFunc("POST /api/nodes", h.CreateNode)
	mux.HandleFunc("PUT /api/nodes/{id}", h.RenameNode)
	mux.HandleFunc("DELETE /api/nodes/{id}", h.DeleteNode)
	mux.HandleFunc("POST /api/nodes/{id}/move", h.MoveNode)
	mux.HandleFunc("POST /api/nodes/{id}/pins", h.InsertPin)
	mux.HandleFunc("DELETE /api/nodes/{id}/pins/{pin}", h.RemovePin)

	mux.HandleFunc("POST /api/edges", h.CreateEdge)
	mux.HandleFunc("DELETE /api/edges/{id}", h.DeleteEdge)
	mux.HandleFunc("POST /api/connect", h.Connect)

	mux.HandleFunc("POST /api/select", h.Select)
	mux.HandleFunc("POST /api/undo", h.Undo)
	mux.HandleFunc("POST /api/redo", h.Redo)

	mux.HandleFunc("POST /api/new", h.NewDocument)
	mux.HandleFunc("POST /api/open", h.Open)
	mux.HandleFunc("POST /api/save", h.Save)
	mux.HandleFunc("GET /api/export/{format}", h.Export)
	mux.HandleFunc("POST /api/import/{format}", h.Import)
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// GraphResponse is the document as seen by a client
type GraphResponse struct {
	Path      string           `json:"path,omitempty"`
	Dirty     bool             `json:"dirty"`
	Selection []string         `json:"selection"`
	Graph     *domain.Snapshot `json:"graph"`
}

// HistoryResponse lists command names, most recent first
type HistoryResponse struct {
	Undo []string `json:"undo"`
	Redo []string `json:"redo"`
}

// CreateNodeRequest is the body of POST /api/nodes
type CreateNodeRequest struct {
	ID   string  `json:"id" validate:"required"`
	Name string  `json:"name"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Z    float64 `json:"z"`
}

// RenameNodeRequest is the body of PUT /api/nodes/{id}
type RenameNodeRequest struct {
	Name string `json:"name" validate:"required"`
}

// MoveNodeRequest is the body of POST /api/nodes/{id}/move. Consecutive
// moves of the same node with Merge set collapse into one undo step.
type MoveNodeRequest struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Merge bool    `json:"merge"`
}

// InsertPinRequest is the body of POST /api/nodes/{id}/pins. A missing
// index appends.
type InsertPinRequest struct {
	Direction string `json:"direction" validate:"required,oneof=input output Input Output"`
	Index     *int   `json:"index" validate:"omitempty,gte=0"`
}

// EdgeRequest is the body of POST /api/edges and POST /api/connect. Connect
// allows an empty target pin.
type EdgeRequest struct {
	SourceNode string `json:"source_node" validate:"required"`
	SourcePin  string `json:"source_pin" validate:"required"`
	TargetNode string `json:"target_node" validate:"required"`
	TargetPin  string `json:"target_pin"`
}

// SelectRequest is the body of POST /api/select. An empty node id clears
// the selection.
type SelectRequest struct {
	NodeID string `json:"node_id"`
	Multi  bool   `json:"multi"`
}

// PathRequest is the body of POST /api/open and POST /api/save
type PathRequest struct {
	Path string `json:"path"`
}

// GetGraph returns the complete document
func (h *GraphHandler) GetGraph(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.graphResponse(), http.StatusOK)
}

// GetHistory returns the undo and redo command names
func (h *GraphHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.historyResponse(), http.StatusOK)
}

// CreateNode adds a node without pins
func (h *GraphHandler) CreateNode(w http.ResponseWriter, r *http.Request) {
	var req CreateNodeRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.run(w, "Failed to create node", http.StatusCreated, false, func(c command.Controller) (command.Command, error) {
		return command.NewAddNode(c, req.ID, req.Name, geometry.Pt(req.X, req.Y, req.Z))
	})
}

// RenameNode changes a node's display name
func (h *GraphHandler) RenameNode(w http.ResponseWriter, r *http.Request) {
	var req RenameNodeRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	h.run(w, "Failed to rename node", http.StatusOK, false, func(c command.Controller) (command.Command, error) {
		return command.NewRenameNode(c, id, req.Name)
	})
}

// DeleteNode removes a node together with its edges
func (h *GraphHandler) DeleteNode(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	h.run(w, "Failed to delete node", http.StatusOK, false, func(c command.Controller) (command.Command, error) {
		return command.NewRemoveNode(c, id)
	})
}

// MoveNode sets a node's position
func (h *GraphHandler) MoveNode(w http.ResponseWriter, r *http.Request) {
	var req MoveNodeRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	h.run(w, "Failed to move node", http.StatusOK, req.Merge, func(c command.Controller) (command.Command, error) {
		return command.NewMoveNode(c, id, geometry.Pt(req.X, req.Y, req.Z))
	})
}

// InsertPin adds a pin to a node
func (h *GraphHandler) InsertPin(w http.ResponseWriter, r *http.Request) {
	var req InsertPinRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	dir := domain.ParsePinDirection(req.Direction)
	h.run(w, "Failed to insert pin", http.StatusCreated, false, func(c command.Controller) (command.Command, error) {
		index := 0
		if req.Index != nil {
			index = *req.Index
		} else if n := c.Graph().Node(id); n != nil {
			index = len(n.PinsOf(dir))
		}
		return command.NewInsertPin(c, id, dir, index)
	})
}

// RemovePin removes a pin that has no edges
func (h *GraphHandler) RemovePin(w http.ResponseWriter, r *http.Request) {
	id, pin := r.PathValue("id"), r.PathValue("pin")
	h.run(w, "Failed to remove pin", http.StatusOK, false, func(c command.Controller) (command.Command, error) {
		return command.NewRemovePin(c, id, pin)
	})
}

// CreateEdge connects two existing pins
func (h *GraphHandler) CreateEdge(w http.ResponseWriter, r *http.Request) {
	var req EdgeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.TargetPin == "" {
		h.writeError(w, "Invalid request body", "target_pin is required", http.StatusBadRequest)
		return
	}
	h.run(w, "Failed to create edge", http.StatusCreated, false, func(c command.Controller) (command.Command, error) {
		return command.NewAddEdge(c, req.SourceNode, req.SourcePin, req.TargetNode, req.TargetPin)
	})
}

// DeleteEdge removes an edge
func (h *GraphHandler) DeleteEdge(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	h.run(w, "Failed to delete edge", http.StatusOK, false, func(c command.Controller) (command.Command, error) {
		return command.NewRemoveEdge(c, id)
	})
}

// Connect adds an edge, inserting a target input pin when needed
func (h *GraphHandler) Connect(w http.ResponseWriter, r *http.Request) {
	var req EdgeRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.run(w, "Failed to connect", http.StatusCreated, false, func(c command.Controller) (command.Command, error) {
		return command.AutoConnect(c, req.SourceNode, req.SourcePin, req.TargetNode, req.TargetPin)
	})
}

// Select changes the selection
func (h *GraphHandler) Select(w http.ResponseWriter, r *http.Request) {
	var req SelectRequest
	if !h.decode(w, r, &req) {
		return
	}
	err := h.session.Do(func(ctrl *service.Controller) error {
		if req.NodeID == "" {
			return ctrl.ClearSelection()
		}
		return ctrl.SelectNode(req.NodeID, req.Multi)
	})
	if err != nil {
		h.fail(w, "Failed to select", err)
		return
	}
	h.writeJSON(w, map[string][]string{"selection": h.session.Selection()}, http.StatusOK)
}

// Undo reverts the most recent command
func (h *GraphHandler) Undo(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Undo(); err != nil {
		h.fail(w, "Failed to undo", err)
		return
	}
	h.writeJSON(w, h.historyResponse(), http.StatusOK)
}

// Redo re-applies the most recently undone command
func (h *GraphHandler) Redo(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Redo(); err != nil {
		h.fail(w, "Failed to redo", err)
		return
	}
	h.writeJSON(w, h.historyResponse(), http.StatusOK)
}

// NewDocument replaces the document with an empty one
func (h *GraphHandler) NewDocument(w http.ResponseWriter, r *http.Request) {
	if err := h.session.New(); err != nil {
		h.fail(w, "Failed to create document", err)
		return
	}
	h.writeJSON(w, h.graphResponse(), http.StatusOK)
}

// Open loads a document from disk
func (h *GraphHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Path == "" {
		h.writeError(w, "Invalid request body", "path is required", http.StatusBadRequest)
		return
	}
	if err := h.session.Open(req.Path); err != nil {
		h.fail(w, "Failed to open document", err)
		return
	}
	h.writeJSON(w, h.graphResponse(), http.StatusOK)
}

// Save writes the document. An empty path saves in place.
func (h *GraphHandler) Save(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	if err := h.session.Save(req.Path); err != nil {
		h.fail(w, "Failed to save document", err)
		return
	}
	h.writeJSON(w, map[string]string{"path": h.session.Path()}, http.StatusOK)
}

// Export writes the document in the format named by the path
func (h *GraphHandler) Export(w http.ResponseWriter, r *http.Request) {
	c, err := codec.Lookup(r.PathValue("format"))
	if err != nil {
		h.fail(w, "Failed to export", err)
		return
	}
	w.Header().Set("Content-Type", contentType(c.Format()))
	if err := c.Export(h.session.Snapshot(), w); err != nil {
		h.logger.Error("export failed", zap.String("format", c.Format()), zap.Error(err))
	}
}

// Import replaces the document with the request body
func (h *GraphHandler) Import(w http.ResponseWriter, r *http.Request) {
	c, err := codec.Lookup(r.PathValue("format"))
	if err != nil {
		h.fail(w, "Failed to import", err)
		return
	}
	snapshot, err := c.Parse(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, "Failed to import", err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.session.Import(snapshot); err != nil {
		h.writeError(w, "Failed to import", err.Error(), http.StatusBadRequest)
		return
	}
	h.writeJSON(w, h.graphResponse(), http.StatusOK)
}

func (h *GraphHandler) run(w http.ResponseWriter, msg string, status int, merge bool, build editor.BuildFunc) {
	cmd, err := h.session.Run(build, merge)
	if err != nil {
		h.fail(w, msg, err)
		return
	}
	h.writeJSON(w, commandResult(cmd, h.session.Snapshot()), status)
}

// CommandResult reports an executed command and the ids it assigned
type CommandResult struct {
	Command string           `json:"command"`
	EdgeID  string           `json:"edge_id,omitempty"`
	PinID   string           `json:"pin_id,omitempty"`
	Graph   *domain.Snapshot `json:"graph"`
}

func commandResult(cmd command.Command, snapshot *domain.Snapshot) CommandResult {
	res := CommandResult{Command: cmd.Name(), Graph: snapshot}
	switch c := cmd.(type) {
	case *command.AddEdge:
		res.EdgeID = c.EdgeID()
	case *command.ConnectWithAutoPin:
		res.EdgeID = c.EdgeID()
		res.PinID = c.InsertedPinID()
	case *command.InsertPin:
		res.PinID = c.PinID()
	}
	return res
}

func (h *GraphHandler) graphResponse() GraphResponse {
	selection := h.session.Selection()
	if selection == nil {
		selection = []string{}
	}
	return GraphResponse{
		Path:      h.session.Path(),
		Dirty:     h.session.Dirty(),
		Selection: selection,
		Graph:     h.session.Snapshot(),
	}
}

func (h *GraphHandler) historyResponse() HistoryResponse {
	undo, redo := h.session.History()
	if undo == nil {
		undo = []string{}
	}
	if redo == nil {
		redo = []string{}
	}
	return HistoryResponse{Undo: undo, Redo: redo}
}

// decode reads and validates a JSON body. It writes the error response and
// returns false on failure.
func (h *GraphHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		h.writeError(w, "Invalid request body", validationDetails(err), http.StatusBadRequest)
		return false
	}
	return true
}

func validationDetails(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		field := strings.ToLower(e.Field())
		switch e.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", field, e.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", field))
		}
	}
	return strings.Join(msgs, "; ")
}

// fail maps err to a status code and writes the error response
func (h *GraphHandler) fail(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, zap.Error(err))
	} else {
		h.logger.Debug(msg, zap.Error(err))
	}
	h.writeError(w, msg, err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case domain.IsNotFound(err), errors.Is(err, persistence.ErrFileNotFound):
		return http.StatusNotFound
	case domain.IsValidation(err), errors.Is(err, codec.ErrUnknownFormat),
		errors.Is(err, editor.ErrNoPath), errors.Is(err, codec.ErrMissingNodes),
		errors.Is(err, codec.ErrInvalidRoot):
		return http.StatusBadRequest
	case domain.IsConflict(err), errors.Is(err, service.ErrReentrantMutation):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func contentType(format string) string {
	switch format {
	case "json":
		return "application/json"
	case "yaml":
		return "application/yaml"
	default:
		return "application/xml"
	}
}

func (h *GraphHandler) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to encode JSON", zap.Error(err))
	}
}

func (h *GraphHandler) writeError(w http.ResponseWriter, error, details string, statusCode int) {
	h.writeJSON(w, ErrorResponse{Error: error, Details: details}, statusCode)
}
