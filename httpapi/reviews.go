package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"marketflow/review"
)

type resolveRequest struct {
	Note string `json:"note" binding:"required,max=2000"`
}

func (h *handler) listReviews(c *gin.Context) {
	recs, err := h.reviews.List(c.Request.Context(), review.Status(c.Query("status")))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if recs == nil {
		recs = []review.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"reviews": recs})
}

func (h *handler) resolveReview(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request", "error": err.Error()})
		return
	}
	rec, err := h.reviews.Resolve(c.Request.Context(), callerID(c), c.Param("id"), req.Note)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}
