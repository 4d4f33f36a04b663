package api

import (
	"errors"
	"net/http"
	"strconv"

	"bookstore-api/internal/apperr"
	"bookstore-api/internal/middleware"
	"bookstore-api/internal/response"

	"github.com/gin-gonic/gin"
)

// DeleteTransaction removes one transaction, force-guarded for records
// carrying live entitlement
// DELETE /api/payments/admin/transactions/:id?force=
func DeleteTransaction(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		response.ErrorJSON(c, http.StatusUnauthorized, "Authentication required")
		return
	}

	transactionID := c.Param("id")
	if transactionID == "" {
		response.ErrorJSON(c, http.StatusBadRequest, "Transaction ID is required")
		return
	}
	force := c.Query("force") == "true"

	if err := AdminService.DeleteTransaction(c.Request.Context(), principal, transactionID, force); err != nil {
		writeAdminError(c, err)
		return
	}

	response.SuccessJSON(c, gin.H{"deleted": transactionID})
}

// BulkDeleteRequest represents the bulk delete request
type BulkDeleteRequest struct {
	TransactionIDs []string `json:"transaction_ids" binding:"required"`
	Force          bool     `json:"force"`
}

// BulkDeleteTransactions removes a set of transactions, all-or-nothing
// on the force guard
// POST /api/payments/admin/transactions/bulk-delete
func BulkDeleteTransactions(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		response.ErrorJSON(c, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req BulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid request format: "+err.Error())
		return
	}

	result, err := AdminService.BulkDeleteTransactions(c.Request.Context(), principal, req.TransactionIDs, req.Force)
	if err != nil {
		writeAdminError(c, err)
		return
	}

	response.SuccessJSON(c, result)
}

// CleanupFailedTransactions sweeps old FAILED transactions
// DELETE /api/payments/admin/transactions/cleanup?daysOld=
func CleanupFailedTransactions(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		response.ErrorJSON(c, http.StatusUnauthorized, "Authentication required")
		return
	}

	daysOld, err := strconv.Atoi(c.DefaultQuery("daysOld", "30"))
	if err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "daysOld must be an integer")
		return
	}

	result, err := AdminService.CleanupFailedTransactions(c.Request.Context(), principal, daysOld)
	if err != nil {
		writeAdminError(c, err)
		return
	}

	response.SuccessJSON(c, result)
}

// writeAdminError adds the protection summary payload on force-guard
// failures so the operator sees why the call was blocked
func writeAdminError(c *gin.Context, err error) {
	var protected *apperr.ProtectedStateError
	if errors.As(err, &protected) {
		c.JSON(http.StatusConflict, gin.H{
			"success":         false,
			"message":         protected.Error(),
			"protected_count": protected.Protected,
			"total_count":     protected.Total,
			"requires_force":  true,
		})
		return
	}
	response.ErrorJSON(c, httpStatusFor(err), err.Error())
}
