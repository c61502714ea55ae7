package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"stablepay/internal/database"
	"stablepay/internal/domain"
	"stablepay/internal/service"
)

type orderLineResponse struct {
	ProductID int64  `json:"productId"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
}

type orderResponse struct {
	ID             uuid.UUID           `json:"id"`
	Status         domain.OrderStatus  `json:"status"`
	TotalAmount    string              `json:"totalAmount"`
	CustomerWallet string              `json:"customerWallet,omitempty"`
	ApprovalTx     string              `json:"approvalTx,omitempty"`
	SettlementTx   string              `json:"settlementTx,omitempty"`
	Items          []orderLineResponse `json:"items"`
	CreatedAt      time.Time           `json:"createdAt"`
	ApprovedAt     *time.Time          `json:"approvedAt,omitempty"`
	PaidAt         *time.Time          `json:"paidAt,omitempty"`
}

func toOrderResponse(order *domain.Order) orderResponse {
	resp := orderResponse{
		ID:             order.ID,
		Status:         order.Status,
		TotalAmount:    order.TotalAmount.String(),
		CustomerWallet: order.CustomerWallet,
		ApprovalTx:     order.ApprovalTx,
		SettlementTx:   order.SettlementTx,
		Items:          []orderLineResponse{},
		CreatedAt:      order.CreatedAt,
		ApprovedAt:     order.ApprovedAt,
		PaidAt:         order.PaidAt,
	}
	for _, line := range order.Lines {
		resp.Items = append(resp.Items, orderLineResponse{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Price:     line.UnitPrice.String(),
		})
	}
	return resp
}

// abort translates the domain error taxonomy into HTTP statuses.
func (s *Server) abort(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound), errors.Is(err, domain.ErrProductNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidOrder),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrVerificationFailed),
		errors.Is(err, domain.ErrAmountMismatch),
		errors.Is(err, domain.ErrInsufficientAllowance),
		errors.Is(err, domain.ErrSettlementFailed),
		errors.Is(err, domain.ErrMissingApproval):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrGatewayUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		s.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, database.Health(c.Request.Context(), s.db))
}

func (s *Server) createOrder(c *gin.Context) {
	var req struct {
		Items []service.OrderItemInput `json:"items"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := s.svc.CreateOrder(c.Request.Context(), req.Items)
	if err != nil {
		s.abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orderId":     order.ID,
		"totalAmount": order.TotalAmount.String(),
		// The storefront renders this as a QR code for the customer wallet.
		"qrPayload": "order:" + order.ID.String(),
	})
}

func (s *Server) getOrder(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	order, err := s.svc.GetOrder(c.Request.Context(), id)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order))
}

func (s *Server) verifyApproval(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	var req struct {
		TxHash string `json:"txHash"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.TxHash == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "transaction hash is required"})
		return
	}

	result, err := s.svc.VerifyApproval(c.Request.Context(), id, req.TxHash)
	if err != nil {
		s.abort(c, err)
		return
	}

	if result.AlreadyPaid {
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Order already marked as paid"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"message":        "Approval verified successfully",
		"orderAmount":    result.OrderAmount.String(),
		"approvedAmount": result.ApprovedAmount.String(),
		"customerWallet": result.CustomerWallet,
	})
}

func (s *Server) collectPayment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	var req struct {
		ClientID string `json:"clientId"`
	}
	// Body is optional; a missing clientId just skips the extra notification.
	_ = c.ShouldBindJSON(&req)

	result, err := s.svc.CollectPayment(c.Request.Context(), id, req.ClientID)
	if err != nil {
		s.abort(c, err)
		return
	}

	if result.AlreadyPaid {
		c.JSON(http.StatusOK, gin.H{
			"success":      true,
			"message":      "Order already marked as paid",
			"settlementTx": result.SettlementTx,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      "Payment collected successfully",
		"amount":       result.Amount.String(),
		"settlementTx": result.SettlementTx,
	})
}

func (s *Server) cancelOrder(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	if err := s.svc.CancelOrder(c.Request.Context(), id); err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type productRequest struct {
	Name        string `json:"name" binding:"required"`
	Price       string `json:"price" binding:"required"`
	Description string `json:"description"`
}

func (s *Server) listProducts(c *gin.Context) {
	products, err := s.products.List(c.Request.Context())
	if err != nil {
		s.abort(c, err)
		return
	}

	resp := make([]gin.H, 0, len(products))
	for _, p := range products {
		resp = append(resp, gin.H{
			"id":          p.ID,
			"name":        p.Name,
			"price":       p.Price.String(),
			"description": p.Description,
		})
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getProduct(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}

	product, err := s.products.FindByID(c.Request.Context(), id)
	if err != nil {
		s.abort(c, err)
		return
	}
	if product == nil {
		s.abort(c, domain.ErrProductNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":          product.ID,
		"name":        product.Name,
		"price":       product.Price.String(),
		"description": product.Description,
	})
}

func (s *Server) createProduct(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "price must be a valid number"})
		return
	}

	product := &domain.Product{Name: req.Name, Price: price, Description: req.Description}
	if err := s.products.Create(c.Request.Context(), product); err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":          product.ID,
		"name":        product.Name,
		"price":       product.Price.String(),
		"description": product.Description,
	})
}

func (s *Server) updateProduct(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}

	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "price must be a valid number"})
		return
	}

	product := &domain.Product{ID: id, Name: req.Name, Price: price, Description: req.Description}
	updated, err := s.products.Update(c.Request.Context(), product)
	if err != nil {
		s.abort(c, err)
		return
	}
	if !updated {
		s.abort(c, domain.ErrProductNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":          product.ID,
		"name":        product.Name,
		"price":       product.Price.String(),
		"description": product.Description,
	})
}

func (s *Server) deleteProduct(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}

	deleted, err := s.products.Delete(c.Request.Context(), id)
	if err != nil {
		s.abort(c, err)
		return
	}
	if !deleted {
		s.abort(c, domain.ErrProductNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) merchantBalances(c *gin.Context) {
	balances, err := s.gateway.MerchantBalances(c.Request.Context())
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"address": balances.Address,
		"token":   balances.Token.String(),
		"native":  balances.Native.String(),
	})
}
