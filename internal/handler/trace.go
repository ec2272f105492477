package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"fairtrace/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type TraceHandler struct{ svc service.TraceService }

func NewTraceHandler(svc service.TraceService) *TraceHandler {
	return &TraceHandler{svc: svc}
}

// viewFunc is one trace view bound to a batch and viewer.
type viewFunc func(c *gin.Context, batchID uuid.UUID, v service.Viewer) (interface{}, error)

func (h *TraceHandler) mapView(c *gin.Context, id uuid.UUID, v service.Viewer) (interface{}, error) {
	return h.svc.Map(c.Request.Context(), id, v)
}

func (h *TraceHandler) stagesView(c *gin.Context, id uuid.UUID, v service.Viewer) (interface{}, error) {
	return h.svc.Stages(c.Request.Context(), id, v)
}

func (h *TraceHandler) claimsView(c *gin.Context, id uuid.UUID, v service.Viewer) (interface{}, error) {
	return h.svc.Claims(c.Request.Context(), id, v)
}

func (h *TraceHandler) transactionsView(c *gin.Context, id uuid.UUID, v service.Viewer) (interface{}, error) {
	return h.svc.Transactions(c.Request.Context(), id, v)
}

// ── Authenticated traces ──────────────────────────────────────────────────────

// Map godoc
// @Summary Actors of a batch's supply chain with their tiers and links
// @Tags trace
// @Produce json
// @Security BearerAuth
// @Param batch_id path string true "Batch ID"
// @Param lang query string false "Language"
// @Success 200 {object} dto.TraceMapResponse
// @Failure 400 {object} apierror.APIError
// @Failure 503 {object} apierror.APIError
// @Router /v1/trace/{batch_id}/map [get]
func (h *TraceHandler) Map(c *gin.Context) { h.private(c, h.mapView) }

// Stages godoc
// @Summary Supply chain stages of a batch, farm first
// @Tags trace
// @Produce json
// @Security BearerAuth
// @Param batch_id path string true "Batch ID"
// @Param lang query string false "Language"
// @Success 200 {object} dto.TraceStagesResponse
// @Failure 400 {object} apierror.APIError
// @Router /v1/trace/{batch_id}/stages [get]
func (h *TraceHandler) Stages(c *gin.Context) { h.private(c, h.stagesView) }

// Claims godoc
// @Summary Claims on a batch and its upstream
// @Tags trace
// @Produce json
// @Security BearerAuth
// @Param batch_id path string true "Batch ID"
// @Success 200 {object} dto.TraceClaimsResponse
// @Router /v1/trace/{batch_id}/claims [get]
func (h *TraceHandler) Claims(c *gin.Context) { h.private(c, h.claimsView) }

func (h *TraceHandler) Transactions(c *gin.Context) { h.private(c, h.transactionsView) }

func (h *TraceHandler) private(c *gin.Context, view viewFunc) {
	batchID, ok := paramID(c, "batch_id")
	if !ok {
		return
	}
	caller := callerFrom(c)
	v := service.Viewer{NodeID: &caller.NodeID, Admin: caller.Admin, Language: language(c)}
	respond(c, batchID, v, view)
}

// ── Public traces ─────────────────────────────────────────────────────────────

func (h *TraceHandler) PublicMap(c *gin.Context)    { h.public(c, h.mapView) }
func (h *TraceHandler) PublicStages(c *gin.Context) { h.public(c, h.stagesView) }
func (h *TraceHandler) PublicClaims(c *gin.Context) { h.public(c, h.claimsView) }

func (h *TraceHandler) public(c *gin.Context, view viewFunc) {
	batchID, v, ok := publicViewer(c)
	if !ok {
		return
	}
	respond(c, batchID, v, view)
}

// PublicReport streams the stage story and claims as a PDF.
// @Summary Trace report for a themed public view
// @Tags trace
// @Produce application/pdf
// @Param theme_id path string true "Theme ID"
// @Param batch_id path string true "Batch ID"
// @Success 200 {file} file
// @Router /v1/public/trace/{theme_id}/{batch_id}/report.pdf [get]
func (h *TraceHandler) PublicReport(c *gin.Context) {
	batchID, v, ok := publicViewer(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := h.svc.Report(c.Request.Context(), batchID, v, &buf); err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="trace-%s.pdf"`, batchID))
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}

func publicViewer(c *gin.Context) (uuid.UUID, service.Viewer, bool) {
	themeID, ok := paramID(c, "theme_id")
	if !ok {
		return uuid.Nil, service.Viewer{}, false
	}
	batchID, ok := paramID(c, "batch_id")
	if !ok {
		return uuid.Nil, service.Viewer{}, false
	}
	return batchID, service.Viewer{ThemeID: &themeID, Language: language(c)}, true
}

func respond(c *gin.Context, batchID uuid.UUID, v service.Viewer, view viewFunc) {
	resp, err := view(c, batchID, v)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// supportedLanguages are the languages traces are rendered in.
var supportedLanguages = map[string]struct{}{
	"en": {}, "es": {}, "fr": {}, "de": {}, "pt": {}, "nl": {}, "it": {},
}

// language picks the primary subtag of ?lang= or the first Accept-Language
// tag. Anything unsupported falls back to "en"; the resolver cache is keyed
// by the result.
func language(c *gin.Context) string {
	lang := c.Query("lang")
	if lang == "" {
		lang = c.GetHeader("Accept-Language")
	}
	if i := strings.IndexAny(lang, ",;-_"); i >= 0 {
		lang = lang[:i]
	}
	lang = strings.ToLower(strings.TrimSpace(lang))
	if _, ok := supportedLanguages[lang]; !ok {
		return "en"
	}
	return lang
}
