package server

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mesh-intelligence/passport/internal/actions"
	"github.com/mesh-intelligence/passport/internal/trace"
	"github.com/mesh-intelligence/passport/pkg/types"
)

func (h *handler) publicPassport(c *gin.Context) {
	data, err := h.svc.Public(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, data)
}

func (h *handler) publicImage(c *gin.Context) {
	data, err := h.svc.Public(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	img, err := h.renderer.PNG(data)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", img)
}

func (h *handler) listTraces(c *gin.Context) {
	records, err := h.svc.ListByProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, records)
}

type treeResponse struct {
	ProductID string             `json:"product_id"`
	Roots     []types.PublicNode `json:"roots"`
	Dangling  []string           `json:"dangling,omitempty"`
}

// tree serves the product tree. depth sets how many levels are expanded
// (default 2); expand adds further node IDs, comma separated.
// format=text returns the ASCII rendering.
func (h *handler) tree(c *gin.Context) {
	depth := 2
	if raw := c.Query("depth"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(c, http.StatusBadRequest, "invalid_depth", fmt.Errorf("depth must be a non-negative integer, got %q", raw))
			return
		}
		depth = n
	}
	f, err := h.svc.Tree(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	expanded := trace.DefaultExpanded(f, depth)
	for _, id := range strings.Split(c.Query("expand"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			expanded.Expand(id)
		}
	}

	if c.Query("format") == "text" {
		var buf bytes.Buffer
		if err := trace.Render(&buf, f, expanded); err != nil {
			respondErr(c, err)
			return
		}
		c.Data(http.StatusOK, "text/plain; charset=utf-8", buf.Bytes())
		return
	}

	resp := treeResponse{ProductID: f.ProductID, Roots: f.Nested(expanded)}
	for _, n := range f.Dangling {
		resp.Dangling = append(resp.Dangling, n.ID())
	}
	respondOK(c, resp)
}

func (h *handler) check(c *gin.Context) {
	report, err := h.svc.Check(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, report)
}

func (h *handler) createTrace(c *gin.Context) {
	var rec types.TraceRecord
	if err := c.ShouldBindJSON(&rec); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	created, err := h.svc.Create(c.Request.Context(), roleOf(c), rec)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *handler) getTrace(c *gin.Context) {
	rec, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, rec)
}

func (h *handler) updateTrace(c *gin.Context) {
	var rec types.TraceRecord
	if err := c.ShouldBindJSON(&rec); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	rec.TraceID = c.Param("id")
	updated, err := h.svc.Update(c.Request.Context(), roleOf(c), rec)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, updated)
}

func (h *handler) deleteTrace(c *gin.Context) {
	cascade, _ := strconv.ParseBool(c.DefaultQuery("cascade", "false"))
	removed, err := h.svc.Delete(c.Request.Context(), c.Param("id"), cascade)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, gin.H{"deleted": removed})
}

type transitionRequest struct {
	Status string `json:"status" binding:"required"`
	Note   string `json:"note"`
}

func (h *handler) transition(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	to, err := types.ParseStatus(req.Status)
	if err != nil {
		respondErr(c, err)
		return
	}
	rec, err := h.svc.TransitionStatus(c.Request.Context(), c.Param("id"), to, roleOf(c), req.Note)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, rec)
}

func (h *handler) history(c *gin.Context) {
	changes, err := h.svc.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, changes)
}

func (h *handler) listSuppliers(c *gin.Context) {
	sups, err := h.svc.ListSuppliers(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, sups)
}

func (h *handler) addSupplier(c *gin.Context) {
	var sup types.Supplier
	if err := c.ShouldBindJSON(&sup); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	created, err := h.svc.AddSupplier(c.Request.Context(), sup)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *handler) listQRCodes(c *gin.Context) {
	logs, err := h.actions.QRCodes(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, logs)
}

// Action endpoints always answer 200 with a Result; failures are reported
// in its error field.

func (h *handler) generateQRCode(c *gin.Context) {
	var in actions.QRInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	respondOK(c, h.actions.GenerateQRCode(c.Request.Context(), in))
}

func (h *handler) sendTestEmail(c *gin.Context) {
	var in actions.EmailInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	respondOK(c, h.actions.SendTestEmail(c.Request.Context(), in))
}

func (h *handler) complianceCheck(c *gin.Context) {
	respondOK(c, h.actions.CheckCompliance(c.Request.Context(), c.Param("id")))
}
