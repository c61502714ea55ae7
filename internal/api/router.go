package api

import (
	"database/sql"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stablepay/internal/ledger"
	"stablepay/internal/notify"
	"stablepay/internal/repo"
	"stablepay/internal/service"
)

type Server struct {
	svc      service.OrderService
	products repo.ProductRepo
	gateway  ledger.Gateway
	hub      *notify.Hub
	db       *sql.DB
	log      *zap.Logger
}

func NewServer(
	svc service.OrderService,
	products repo.ProductRepo,
	gateway ledger.Gateway,
	hub *notify.Hub,
	db *sql.DB,
	log *zap.Logger,
) *Server {
	return &Server{
		svc:      svc,
		products: products,
		gateway:  gateway,
		hub:      hub,
		db:       db,
		log:      log,
	}
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.Default())

	r.GET("/health", s.health)
	r.GET("/ws", func(c *gin.Context) {
		notify.ServeWS(s.hub, s.log, c.Writer, c.Request)
	})

	apiGroup := r.Group("/api")
	{
		apiGroup.POST("/orders", s.createOrder)
		apiGroup.GET("/orders/:id", s.getOrder)
		apiGroup.POST("/orders/:id/verify-approval", s.verifyApproval)
		apiGroup.POST("/orders/:id/collect-payment", s.collectPayment)
		apiGroup.POST("/orders/:id/cancel", s.cancelOrder)

		apiGroup.GET("/products", s.listProducts)
		apiGroup.GET("/products/:id", s.getProduct)
		apiGroup.POST("/products", s.createProduct)
		apiGroup.PUT("/products/:id", s.updateProduct)
		apiGroup.DELETE("/products/:id", s.deleteProduct)

		apiGroup.GET("/merchant/balances", s.merchantBalances)
	}

	return r
}
