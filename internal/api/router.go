package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/api/handlers"
	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/api/middleware"
	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/cache"
	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/config"
	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/services"
)

// SetupRouter configures and returns the main Gin engine.
func SetupRouter(cfg *config.Config, db *mongo.Database, rdb *redis.Client, configSvc services.IConfigService) *gin.Engine {
	// Initialize services needed by API handlers
	statementCache := cache.NewStatementCache(rdb, cfg.StatementCacheTTL)
	bankLedgerService := services.NewBankLedgerService(db)
	payableService := services.NewPayableService(db)
	invoiceService := services.NewInvoiceService(db, cfg, bankLedgerService, payableService, statementCache)
	cardService := services.NewCardService(db, cfg, statementCache)
	entryService := services.NewEntryService(db, cfg, statementCache)
	installmentService := services.NewInstallmentService(db, cfg, invoiceService, statementCache)

	r := gin.Default()

	rateLimiter := middleware.NewRateLimiterMiddleware(cfg, configSvc)

	// Global middleware, order matters
	r.Use(middleware.CORSMiddleware())
	r.Use(rateLimiter.Limit())

	// Initialize handlers
	cardHandler := handlers.NewRestCardHandler(cardService, invoiceService, installmentService, entryService)
	invoiceHandler := handlers.NewRestInvoiceHandler(invoiceService, entryService)
	entryHandler := handlers.NewRestEntryHandler(entryService)

	v1 := r.Group("/v1")
	{
		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		// All ledger routes require an authenticated back-office operator.
		authRequired := v1.Group("/")
		authRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret))
		{
			// Card routes
			authRequired.POST("/card", cardHandler.CreateCard)
			authRequired.GET("/card", cardHandler.ListCards)
			authRequired.GET("/card/:id", cardHandler.GetStatement)
			authRequired.PATCH("/card/:id", cardHandler.UpdateCard)
			authRequired.POST("/card/:id/activate", cardHandler.ActivateCard)
			authRequired.POST("/card/:id/deactivate", cardHandler.DeactivateCard)
			authRequired.DELETE("/card/:id", cardHandler.DeleteCard)
			authRequired.POST("/card/:id/purchase", cardHandler.Purchase)
			authRequired.POST("/card/:id/invoice", cardHandler.CreateInvoice)
			authRequired.GET("/card/:id/unassigned", cardHandler.ListUnassigned)

			// Invoice routes
			authRequired.GET("/invoice/:id", invoiceHandler.GetInvoiceByID)
			authRequired.POST("/invoice/:id/close", invoiceHandler.CloseInvoice)
			authRequired.POST("/invoice/:id/pay", invoiceHandler.PayInvoice)
			authRequired.POST("/invoice/:id/reopen", invoiceHandler.ReopenInvoice)
			authRequired.DELETE("/invoice/:id", invoiceHandler.DeleteInvoice)

			// Entry routes
			authRequired.POST("/invoice/:id/expense", entryHandler.AddExpense)
			authRequired.POST("/invoice/:id/credit", entryHandler.AddCredit)
			authRequired.PATCH("/expense/:id", entryHandler.UpdateExpense)
			authRequired.DELETE("/expense/:id", entryHandler.DeleteExpense)
			authRequired.POST("/expense/:id/reorder", entryHandler.ReorderExpense)
			authRequired.POST("/expense/:id/assign", entryHandler.AssignExpense)
			authRequired.DELETE("/credit/:id", entryHandler.DeleteCredit)
		}
	}

	return r
}

// SetupServiceRouter configures the internal service API used for controlled
// shutdown in deployments and tests.
func SetupServiceRouter(cfg *config.Config, shutdownChan chan<- struct{}) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.POST("/api", func(c *gin.Context) {
		var req struct {
			Method    string          `json:"method"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request format"})
			return
		}

		switch req.Method {
		case "shutdown":
			fmt.Println("Received shutdown command via Service API")
			c.JSON(http.StatusOK, gin.H{"success": true, "result": "Shutdown initiated"})
			select {
			case shutdownChan <- struct{}{}:
				fmt.Println("Shutdown signal sent successfully.")
			default:
				fmt.Println("Shutdown channel already signaled or blocked.")
			}
		default:
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Unknown service method: %s", req.Method)})
		}
	})
	return r
}
