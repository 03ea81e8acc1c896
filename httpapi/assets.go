package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"marketflow/asset"
)

func (h *handler) availability(c *gin.Context) {
	out, err := h.settlement.Availability(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) incrementMetric(c *gin.Context) {
	metric := asset.Metric(c.Param("metric"))
	n, err := h.metrics.IncrementMetric(c.Request.Context(), c.Param("id"), metric)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assetId": c.Param("id"), "metric": metric, "value": n})
}
