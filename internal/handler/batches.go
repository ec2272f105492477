package handler

import (
	"net/http"

	"fairtrace/internal/apierror"
	"fairtrace/internal/dto"
	"fairtrace/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type BatchesHandler struct{ svc service.BatchService }

func NewBatchesHandler(svc service.BatchService) *BatchesHandler {
	return &BatchesHandler{svc: svc}
}

// Create godoc
// @Summary Register a harvested or received batch
// @Tags batches
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.CreateBatchRequest true "Batch"
// @Success 201 {object} dto.BatchResponse
// @Failure 422 {object} apierror.ValidationError
// @Router /v1/batches [post]
func (h *BatchesHandler) Create(c *gin.Context) {
	var req dto.CreateBatchRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.CreateBatch(c.Request.Context(), callerFrom(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *BatchesHandler) List(c *gin.Context) {
	var filter dto.ListBatchesFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New(err.Error()))
		return
	}
	resp, err := h.svc.ListBatches(c.Request.Context(), callerFrom(c), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Get godoc
// @Summary Get a batch
// @Tags batches
// @Produce json
// @Security BearerAuth
// @Param id path string true "Batch ID"
// @Success 200 {object} dto.BatchResponse
// @Failure 404 {object} apierror.APIError
// @Router /v1/batches/{id} [get]
func (h *BatchesHandler) Get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.GetBatch(c.Request.Context(), callerFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *BatchesHandler) Archive(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.ArchiveBatch(c.Request.Context(), callerFrom(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type consumeRequest struct {
	Quantity decimal.Decimal `json:"quantity" validate:"required,gt=0"`
}

// Consume takes a stock correction out of a batch.
func (h *BatchesHandler) Consume(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req consumeRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if err := h.svc.Consume(c.Request.Context(), callerFrom(c), id, req.Quantity); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ── Transactions ──────────────────────────────────────────────────────────────

// CreateExternal godoc
// @Summary Send batches to another node
// @Tags transactions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.ExternalTransactionRequest true "Transaction"
// @Success 201 {object} dto.TransactionResponse
// @Failure 422 {object} apierror.APIError
// @Router /v1/transactions/external [post]
func (h *BatchesHandler) CreateExternal(c *gin.Context) {
	var req dto.ExternalTransactionRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.CreateExternalTransaction(c.Request.Context(), callerFrom(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// CreateInternal godoc
// @Summary Split, merge or process batches
// @Tags transactions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.InternalTransactionRequest true "Transaction"
// @Success 201 {object} dto.TransactionResponse
// @Failure 422 {object} apierror.APIError
// @Router /v1/transactions/internal [post]
func (h *BatchesHandler) CreateInternal(c *gin.Context) {
	var req dto.InternalTransactionRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.CreateInternalTransaction(c.Request.Context(), callerFrom(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *BatchesHandler) GetTransaction(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.GetTransaction(c.Request.Context(), callerFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
