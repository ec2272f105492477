package handler

import (
	"net/http"

	"fairtrace/internal/dto"
	"fairtrace/internal/service"

	"github.com/gin-gonic/gin"
)

type NodesHandler struct{ svc service.NodeService }

func NewNodesHandler(svc service.NodeService) *NodesHandler {
	return &NodesHandler{svc: svc}
}

func (h *NodesHandler) Create(c *gin.Context) {
	var req dto.CreateNodeRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.CreateNode(c.Request.Context(), callerFrom(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *NodesHandler) Get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.GetNode(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *NodesHandler) CreateSupplyChain(c *gin.Context) {
	var req dto.CreateSupplyChainRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.CreateSupplyChain(c.Request.Context(), callerFrom(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *NodesHandler) SetOperation(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req dto.SetOperationRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if err := h.svc.SetOperation(c.Request.Context(), callerFrom(c), id, req); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *NodesHandler) AddSupplier(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req dto.AddSupplierRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if err := h.svc.AddSupplier(c.Request.Context(), callerFrom(c), id, req); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *NodesHandler) RemoveSupplier(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	supplierID, ok := paramID(c, "supplier_id")
	if !ok {
		return
	}
	if err := h.svc.RemoveSupplier(c.Request.Context(), callerFrom(c), id, supplierID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *NodesHandler) SupplierTiers(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.SupplierTiers(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *NodesHandler) CreateTheme(c *gin.Context) {
	var req dto.CreateThemeRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.CreateTheme(c.Request.Context(), callerFrom(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}
