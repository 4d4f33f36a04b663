package api

import (
	"net/http"

	"bookstore-api/internal/response"

	"github.com/gin-gonic/gin"
)

// RedeemDownload releases one download against the token's quota
// GET /api/payments/download/:downloadToken
func RedeemDownload(c *gin.Context) {
	token := c.Param("downloadToken")
	if token == "" {
		response.ErrorJSON(c, http.StatusBadRequest, "Download token is required")
		return
	}

	link, err := Entitlements.IssueDownloadLink(c.Request.Context(), token)
	if err != nil {
		response.ErrorJSON(c, httpStatusFor(err), err.Error())
		return
	}

	response.SuccessJSON(c, link)
}
