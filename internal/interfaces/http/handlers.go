package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/office-requisition/internal/application/port"
	"github.com/garyjia/office-requisition/internal/application/service"
	"github.com/garyjia/office-requisition/internal/domain/entity"
	"github.com/garyjia/office-requisition/internal/domain/requisition"
	"github.com/garyjia/office-requisition/internal/domain/workflow"
	"github.com/garyjia/office-requisition/pkg/validation"
)

// Error codes carried in error responses
const (
	CodeInvalidInput           = "INVALID_INPUT"
	CodeInvalidState           = "INVALID_STATE"
	CodeNotFound               = "NOT_FOUND"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeDuplicateOperation     = "DUPLICATE_OPERATION"
	CodeInternal               = "INTERNAL"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	requisitions service.RequisitionService
	ownership    port.InventoryOwnership
	health       HealthFunc
	validator    *validation.Validator
	logger       Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	requisitions service.RequisitionService,
	ownership port.InventoryOwnership,
	health HealthFunc,
	validator *validation.Validator,
	logger Logger,
) *Handlers {
	return &Handlers{
		requisitions: requisitions,
		ownership:    ownership,
		health:       health,
		validator:    validator,
		logger:       logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success   bool              `json:"success"`
	Data      interface{}       `json:"data,omitempty"`
	Error     string            `json:"error,omitempty"`
	Code      string            `json:"code,omitempty"`
	Retryable bool              `json:"retryable,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string                 `json:"status"`
	Timestamp  string                 `json:"timestamp"`
	Components map[string]interface{} `json:"components,omitempty"`
}

// ListResponse is a page of results with the total match count
type ListResponse struct {
	Items  interface{} `json:"items"`
	Total  int64       `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// CreateRequisitionRequest is the body of POST /api/requisitions
type CreateRequisitionRequest struct {
	ItemID             string `json:"item_id" validate:"required,nonblank,max=128"`
	RequestingOfficeID string `json:"requesting_office_id" validate:"required,nonblank,max=128,nefield=ParentOfficeID"`
	ParentOfficeID     string `json:"parent_office_id" validate:"required,nonblank,max=128"`
	Quantity           int    `json:"quantity" validate:"gt=0"`
	Remarks            string `json:"remarks" validate:"max=1000"`
}

// ApproveRequest is the body of PUT /api/requisitions/:id/approve.
// approved_quantity may be zero but must be present.
type ApproveRequest struct {
	ApprovedQuantity *int   `json:"approved_quantity" validate:"required"`
	Remarks          string `json:"remarks" validate:"max=1000"`
}

// ReasonRequest is the body of reject and cancel
type ReasonRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

// RemarksRequest is the body of confirm
type RemarksRequest struct {
	Remarks string `json:"remarks" validate:"max=1000"`
}

// FulfillRequest is the body of PUT /api/requisitions/:id/fulfill
type FulfillRequest struct {
	Quantity    int      `json:"quantity"`
	InstanceIDs []string `json:"instance_ids" validate:"required,min=1,dive,nonblank,max=128"`
}

// FulfillResponse carries the updated requisition and the movements of the step
type FulfillResponse struct {
	Requisition *entity.Requisition `json:"requisition"`
	Movements   []*entity.Movement  `json:"movements"`
}

// ListRequisitionsQuery holds the query parameters of GET /api/requisitions
type ListRequisitionsQuery struct {
	RequestingOffice string `form:"requesting_office" json:"requesting_office"`
	ParentOffice     string `form:"parent_office" json:"parent_office"`
	Status           string `form:"status" json:"status" validate:"requisition_status"`
	RequestedBy      string `form:"requested_by" json:"requested_by"`
	Limit            int    `form:"limit" json:"limit" validate:"min=0"`
	Offset           int    `form:"offset" json:"offset" validate:"min=0"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if h.health != nil {
		components, err := h.health(c.Request.Context())
		resp.Components = components
		if err != nil {
			resp.Status = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, Response{
				Success: false,
				Data:    resp,
				Error:   err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: resp})
}

// CreateRequisition handles POST /api/requisitions
func (h *Handlers) CreateRequisition(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req CreateRequisitionRequest
	if !h.bind(c, &req) {
		return
	}

	r, err := h.requisitions.Create(c.Request.Context(), requisition.CreateParams{
		ItemID:             req.ItemID,
		RequestingOfficeID: req.RequestingOfficeID,
		ParentOfficeID:     req.ParentOfficeID,
		Quantity:           req.Quantity,
		Remarks:            req.Remarks,
	}, actor)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: r})
}

// ListRequisitions handles GET /api/requisitions
func (h *Handlers) ListRequisitions(c *gin.Context) {
	var q ListRequisitionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.writeError(c, fmt.Errorf("%w: invalid query parameters", requisition.ErrInvalidInput))
		return
	}
	q.Status = strings.ToUpper(strings.TrimSpace(q.Status))
	if err := h.validator.Struct(q); err != nil {
		h.writeError(c, err)
		return
	}

	filter := entity.RequisitionFilter{
		RequestingOfficeID: q.RequestingOffice,
		ParentOfficeID:     q.ParentOffice,
		Status:             workflow.State(q.Status),
		RequestedBy:        q.RequestedBy,
		Limit:              q.Limit,
		Offset:             q.Offset,
	}
	items, total, err := h.requisitions.List(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    ListResponse{Items: items, Total: total, Limit: q.Limit, Offset: q.Offset},
	})
}

// IncomingRequisitions handles GET /api/requisitions/incoming?office=
func (h *Handlers) IncomingRequisitions(c *gin.Context) {
	limit, err1 := queryInt(c, "limit")
	offset, err2 := queryInt(c, "offset")
	if err := errors.Join(err1, err2); err != nil {
		h.writeError(c, err)
		return
	}

	items, total, err := h.requisitions.Incoming(c.Request.Context(), c.Query("office"), limit, offset)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    ListResponse{Items: items, Total: total, Limit: limit, Offset: offset},
	})
}

// GetRequisition handles GET /api/requisitions/:id
func (h *Handlers) GetRequisition(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	r, err := h.requisitions.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: r})
}

// GetHistory handles GET /api/requisitions/:id/history
func (h *Handlers) GetHistory(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	records, err := h.requisitions.History(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: records})
}

// GetMovements handles GET /api/requisitions/:id/movements
func (h *Handlers) GetMovements(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	movements, err := h.requisitions.Movements(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: movements})
}

// ApproveRequisition handles PUT /api/requisitions/:id/approve
func (h *Handlers) ApproveRequisition(c *gin.Context) {
	id, actor, ok := h.target(c)
	if !ok {
		return
	}
	var req ApproveRequest
	if !h.bind(c, &req) {
		return
	}

	r, err := h.requisitions.Approve(c.Request.Context(), id, *req.ApprovedQuantity, req.Remarks, actor)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: r})
}

// RejectRequisition handles PUT /api/requisitions/:id/reject
func (h *Handlers) RejectRequisition(c *gin.Context) {
	id, actor, ok := h.target(c)
	if !ok {
		return
	}
	var req ReasonRequest
	if !h.bind(c, &req) {
		return
	}

	r, err := h.requisitions.Reject(c.Request.Context(), id, req.Reason, actor)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: r})
}

// FulfillRequisition handles PUT /api/requisitions/:id/fulfill
func (h *Handlers) FulfillRequisition(c *gin.Context) {
	id, actor, ok := h.target(c)
	if !ok {
		return
	}
	var req FulfillRequest
	if !h.bind(c, &req) {
		return
	}

	res, err := h.requisitions.Fulfill(c.Request.Context(), id, req.Quantity, req.InstanceIDs, actor)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    FulfillResponse{Requisition: res.Requisition, Movements: res.Movements},
	})
}

// ConfirmRequisition handles PUT /api/requisitions/:id/confirm
func (h *Handlers) ConfirmRequisition(c *gin.Context) {
	id, actor, ok := h.target(c)
	if !ok {
		return
	}
	var req RemarksRequest
	if !h.bind(c, &req) {
		return
	}

	r, err := h.requisitions.ConfirmReceipt(c.Request.Context(), id, req.Remarks, actor)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: r})
}

// CancelRequisition handles PUT /api/requisitions/:id/cancel
func (h *Handlers) CancelRequisition(c *gin.Context) {
	id, actor, ok := h.target(c)
	if !ok {
		return
	}
	var req ReasonRequest
	if !h.bind(c, &req) {
		return
	}

	r, err := h.requisitions.Cancel(c.Request.Context(), id, req.Reason, actor)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: r})
}

// GetInstanceOwner handles GET /api/instances/:id/owner
func (h *Handlers) GetInstanceOwner(c *gin.Context) {
	owner, err := h.ownership.Owner(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: owner})
}

// actor reads the acting user from the X-User-ID header
func (h *Handlers) actor(c *gin.Context) (string, bool) {
	actor := strings.TrimSpace(c.GetHeader(HeaderUserID))
	if actor == "" {
		h.writeError(c, fmt.Errorf("%w: %s header is required", requisition.ErrInvalidInput, HeaderUserID))
		return "", false
	}
	return actor, true
}

func (h *Handlers) pathID(c *gin.Context) (int64, bool) {
	idStr := c.Param("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		h.writeError(c, fmt.Errorf("%w: invalid requisition id %q", requisition.ErrInvalidInput, idStr))
		return 0, false
	}
	return id, true
}

// target resolves the path id and the actor of a transition request
func (h *Handlers) target(c *gin.Context) (int64, string, bool) {
	id, ok := h.pathID(c)
	if !ok {
		return 0, "", false
	}
	actor, ok := h.actor(c)
	if !ok {
		return 0, "", false
	}
	return id, actor, true
}

// bind decodes the JSON body into dst and validates it. An empty body is
// treated as an empty object.
func (h *Handlers) bind(c *gin.Context, dst interface{}) bool {
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(dst); err != nil {
			h.writeError(c, fmt.Errorf("%w: malformed request body: %v", requisition.ErrInvalidInput, err))
			return false
		}
	}
	if err := h.validator.Struct(dst); err != nil {
		h.writeError(c, err)
		return false
	}
	return true
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", requisition.ErrInvalidInput, key)
	}
	return n, nil
}

// writeError maps err onto a status code and error envelope
func (h *Handlers) writeError(c *gin.Context, err error) {
	status, code := classify(err)
	resp := Response{Success: false, Error: err.Error(), Code: code}

	var verr *validation.Error
	if errors.As(err, &verr) {
		resp.Fields = verr.Fields
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "path", c.Request.URL.Path, "error", err)
		resp.Error = "internal error"
	}
	resp.Retryable = requisition.IsRetryable(err)

	c.AbortWithStatusJSON(status, resp)
}

func classify(err error) (int, string) {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr), errors.Is(err, requisition.ErrInvalidInput):
		return http.StatusBadRequest, CodeInvalidInput
	case errors.Is(err, requisition.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, requisition.ErrInvalidState):
		return http.StatusConflict, CodeInvalidState
	case errors.Is(err, requisition.ErrConcurrentModification):
		return http.StatusConflict, CodeConcurrentModification
	case errors.Is(err, requisition.ErrDuplicateOperation):
		return http.StatusConflict, CodeDuplicateOperation
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}
