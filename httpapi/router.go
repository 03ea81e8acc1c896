package httpapi

import (
	"context"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"marketflow/asset"
	"marketflow/auth"
	"marketflow/ledger"
	"marketflow/review"
	"marketflow/settlement"
)

// Settlement is the coordinator surface the handlers call.
type Settlement interface {
	InitiateSettlement(ctx context.Context, p settlement.InitiateParams) (settlement.InitiateResult, error)
	ConfirmSettlement(ctx context.Context, p settlement.ConfirmParams) (settlement.ConfirmResult, error)
	History(ctx context.Context, callerID string, page, limit int) (ledger.HistoryPage, error)
	Availability(ctx context.Context, assetID string) (asset.Availability, error)
}

// Confirmer polls a confirmation until the processor settles or retries run out.
type Confirmer interface {
	Confirm(ctx context.Context, p settlement.ConfirmParams) (settlement.ConfirmResult, error)
}

type MetricCounter interface {
	IncrementMetric(ctx context.Context, id string, m asset.Metric) (int64, error)
}

type Reviews interface {
	List(ctx context.Context, status review.Status) ([]review.Record, error)
	Resolve(ctx context.Context, operatorID, id, note string) (review.Record, error)
}

type TokenVerifier interface {
	VerifyToken(token string) (auth.Claims, error)
}

type Dependencies struct {
	Settlement    Settlement
	Confirmer     Confirmer
	Metrics       MetricCounter
	Reviews       Reviews
	Verifier      TokenVerifier
	WebhookSecret string
	Logger        *zap.Logger
}

type handler struct {
	settlement    Settlement
	confirmer     Confirmer
	metrics       MetricCounter
	reviews       Reviews
	webhookSecret string
	logger        *zap.Logger
}

// NewRouter builds the gin engine serving the payments API.
func NewRouter(deps Dependencies) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handler{
		settlement:    deps.Settlement,
		confirmer:     deps.Confirmer,
		metrics:       deps.Metrics,
		reviews:       deps.Reviews,
		webhookSecret: deps.WebhookSecret,
		logger:        logger,
	}

	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))
	router.Use(metricsMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.POST("/webhooks/stripe", h.stripeWebhook)

	api := router.Group("/api")
	api.GET("/assets/:id/availability", h.availability)
	api.POST("/assets/:id/metrics/:metric", h.incrementMetric)

	protected := api.Group("")
	protected.Use(authMiddleware(deps.Verifier))
	{
		payments := protected.Group("/payments")
		payments.POST("/create-intent", h.createIntent)
		payments.POST("/confirm", h.confirm)
		payments.GET("/history", h.history)

		admin := protected.Group("/admin")
		admin.Use(requireRole(auth.RoleAdmin))
		admin.GET("/reviews", h.listReviews)
		admin.POST("/reviews/:id/resolve", h.resolveReview)
	}

	return router
}
