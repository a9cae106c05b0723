package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	billdomain "github.com/wattlinehq/wattline/internal/bill/domain"
)

type createBillRequest struct {
	CustomerID string     `json:"customer_id"`
	Units      float64    `json:"units"`
	IssueDate  *time.Time `json:"issue_date"`
	DueDate    *time.Time `json:"due_date"`
}

type updateBillRequest struct {
	Units   *float64   `json:"units"`
	Amount  *float64   `json:"amount"`
	DueDate *time.Time `json:"due_date"`
	Status  *string    `json:"status"`
}

func (s *Server) CreateBill(c *gin.Context) {
	var req createBillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	bill, err := s.billSvc.Create(c.Request.Context(), billdomain.CreateBillRequest{
		CustomerID: strings.TrimSpace(req.CustomerID),
		Units:      req.Units,
		IssueDate:  req.IssueDate,
		DueDate:    req.DueDate,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": bill})
}

func (s *Server) ListBills(c *gin.Context) {
	bills, err := s.billSvc.ListAll(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": bills})
}

func (s *Server) UpdateBill(c *gin.Context) {
	var req updateBillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.billSvc.Update(c.Request.Context(), billdomain.UpdateBillRequest{
		ID:      strings.TrimSpace(c.Param("id")),
		Units:   req.Units,
		Amount:  req.Amount,
		DueDate: req.DueDate,
		Status:  req.Status,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) DeleteBill(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if err := s.billSvc.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"id": id, "deleted": true}})
}

// ListOwnBills is the customer-facing listing, always scoped to the caller.
func (s *Server) ListOwnBills(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	bills, err := s.billSvc.ListForCustomer(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": bills})
}
