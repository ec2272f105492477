package handler

import (
	"net/http"

	"fairtrace/internal/dto"
	"fairtrace/internal/service"

	"github.com/gin-gonic/gin"
)

type ClaimsHandler struct{ svc service.ClaimService }

func NewClaimsHandler(svc service.ClaimService) *ClaimsHandler {
	return &ClaimsHandler{svc: svc}
}

func (h *ClaimsHandler) Create(c *gin.Context) {
	var req dto.CreateClaimRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.CreateClaim(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *ClaimsHandler) Attach(c *gin.Context) {
	var req dto.AttachClaimRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Attach(c.Request.Context(), callerFrom(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Inheritable previews the claims a transaction would carry over.
func (h *ClaimsHandler) Inheritable(c *gin.Context) {
	var req dto.InheritableClaimsRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.InheritablePreview(c.Request.Context(), callerFrom(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ClaimsHandler) CreateStockRequest(c *gin.Context) {
	var req dto.CreateStockRequestRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.CreateStockRequest(c.Request.Context(), callerFrom(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}
