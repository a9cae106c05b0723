package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

// ListOwnConsumption returns the caller's monthly unit aggregates, oldest
// first, ready for charting.
func (s *Server) ListOwnConsumption(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	aggregates, err := s.consumptionSvc.ListForCustomer(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": aggregates})
}

// AuditConsumption reconciles one customer's stored aggregates against their
// bills and reports any period that drifted.
func (s *Server) AuditConsumption(c *gin.Context) {
	customerID, err := snowflake.ParseString(strings.TrimSpace(c.Query("customer_id")))
	if err != nil {
		AbortWithError(c, newValidationError("customer_id", "invalid_customer_id", "invalid customer_id"))
		return
	}

	report, err := s.consumptionSvc.Audit(c.Request.Context(), customerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}
