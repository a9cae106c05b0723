package server

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	paymentdomain "github.com/wattlinehq/wattline/internal/payment/domain"
	"github.com/wattlinehq/wattline/internal/providers/pdf"
	userdomain "github.com/wattlinehq/wattline/internal/user/domain"
)

type createOrderRequest struct {
	BillID string `json:"bill_id"`
}

type verifyPaymentRequest struct {
	BillID           string `json:"bill_id"`
	OrderID          string `json:"order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	Signature        string `json:"signature"`
}

func (s *Server) ListOwnPayments(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	payments, err := s.paymentSvc.ListForCustomer(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payments})
}

func (s *Server) CreateOrder(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	billRef := strings.TrimSpace(req.BillID)
	if billRef == "" {
		AbortWithError(c, newValidationError("bill_id", "invalid_bill_id", "invalid bill_id"))
		return
	}

	order, err := s.paymentSvc.CreateOrder(c.Request.Context(), paymentdomain.CreateOrderRequest{
		CustomerID: userID,
		BillRef:    billRef,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": order})
}

func (s *Server) VerifyPayment(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req verifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	payment, err := s.paymentSvc.VerifyAndRecord(c.Request.Context(), paymentdomain.VerifyRequest{
		CustomerID:       userID,
		BillRef:          strings.TrimSpace(req.BillID),
		OrderID:          strings.TrimSpace(req.OrderID),
		GatewayPaymentID: strings.TrimSpace(req.GatewayPaymentID),
		Signature:        strings.TrimSpace(req.Signature),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payment})
}

func (s *Server) DownloadReceipt(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	paymentID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, paymentdomain.ErrNotFound)
		return
	}

	payment, err := s.paymentSvc.GetOwned(c.Request.Context(), userID, paymentID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	user, err := s.userSvc.GetByID(c.Request.Context(), userdomain.GetUserRequest{ID: userID.String()})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	description := "Electricity bill " + payment.BillRef
	if payment.BillRef == paymentdomain.BillRefAll {
		description = "All outstanding electricity bills"
	}

	reader, err := s.receipts.RenderReceipt(c.Request.Context(), pdf.ReceiptData{
		ReceiptNumber: payment.ID.String(),
		PaidOn:        payment.CreatedAt.UTC().Format("2 Jan 2006"),
		CustomerName:  user.Name,
		CustomerEmail: payment.CustomerEmail,
		Method:        payment.Method,
		OrderID:       payment.OrderID,
		Total:         fmt.Sprintf("INR %.2f", payment.Amount),
		Lines: []pdf.ReceiptLine{
			{
				Description: description,
				Units:       "-",
				Amount:      fmt.Sprintf("INR %.2f", payment.Amount),
			},
		},
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=receipt-%s.pdf", payment.ID.String()))
	c.Header("Content-Type", "application/pdf")
	if _, err := io.Copy(c.Writer, reader); err != nil {
		_ = c.Error(err)
	}
}
