package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// PreviewTariff prices a unit count without creating anything. Both roles
// may call it; the estimate page uses it before a bill exists.
func (s *Server) PreviewTariff(c *gin.Context) {
	raw := strings.TrimSpace(c.Query("units"))
	units, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		AbortWithError(c, newValidationError("units", "invalid_units", "invalid units"))
		return
	}

	quote, err := s.calculator.Quote(units)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"quote":     quote,
		"breakdown": quote.Describe(),
	}})
}
