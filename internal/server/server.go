package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/mhminhas/thinklab/internal/account"
	accountdomain "github.com/mhminhas/thinklab/internal/account/domain"
	"github.com/mhminhas/thinklab/internal/analytics"
	"github.com/mhminhas/thinklab/internal/apikey"
	apikeydomain "github.com/mhminhas/thinklab/internal/apikey/domain"
	"github.com/mhminhas/thinklab/internal/config"
	"github.com/mhminhas/thinklab/internal/gateway"
	"github.com/mhminhas/thinklab/internal/ledger"
	ledgerdomain "github.com/mhminhas/thinklab/internal/ledger/domain"
	"github.com/mhminhas/thinklab/internal/marketplace"
	marketplacedomain "github.com/mhminhas/thinklab/internal/marketplace/domain"
	"github.com/mhminhas/thinklab/internal/notification"
	notificationdomain "github.com/mhminhas/thinklab/internal/notification/domain"
	"github.com/mhminhas/thinklab/internal/observability"
	obsmiddleware "github.com/mhminhas/thinklab/internal/observability/logger"
	obsmetrics "github.com/mhminhas/thinklab/internal/observability/metrics"
	obstracing "github.com/mhminhas/thinklab/internal/observability/tracing"
	"github.com/mhminhas/thinklab/internal/pricing"
	"github.com/mhminhas/thinklab/internal/project"
	projectdomain "github.com/mhminhas/thinklab/internal/project/domain"
	"github.com/mhminhas/thinklab/internal/provider"
	"github.com/mhminhas/thinklab/internal/ratelimit"
	"github.com/mhminhas/thinklab/internal/reconciler"
	"github.com/mhminhas/thinklab/internal/task"
	taskdomain "github.com/mhminhas/thinklab/internal/task/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	pricing.Module,
	ledger.Module,
	account.Module,
	apikey.Module,
	provider.Module,
	gateway.Module,
	project.Module,
	task.Module,
	marketplace.Module,
	notification.Module,
	analytics.Module,
	ratelimit.Module,
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: s.Engine(),
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	db              *gorm.DB
	genID           *snowflake.Node
	accountSvc      accountdomain.Service
	apiKeySvc       apikeydomain.Service
	ledgerSvc       ledgerdomain.Service
	gatewaySvc      *gateway.Gateway
	pricingTable    *pricing.Table
	projectSvc      projectdomain.Service
	taskSvc         taskdomain.Service
	marketplaceSvc  marketplacedomain.Service
	notificationSvc notificationdomain.Service
	analyticsSvc    *analytics.Service
	reconcilerSvc   *reconciler.Reconciler
	obsMetrics      *obsmetrics.Metrics
	actionLimiter   *ratelimit.ActionLimiter
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	GenID           *snowflake.Node
	AccountSvc      accountdomain.Service
	APIKeySvc       apikeydomain.Service
	LedgerSvc       ledgerdomain.Service
	GatewaySvc      *gateway.Gateway
	PricingTable    *pricing.Table
	ProjectSvc      projectdomain.Service
	TaskSvc         taskdomain.Service
	MarketplaceSvc  marketplacedomain.Service
	NotificationSvc notificationdomain.Service
	AnalyticsSvc    *analytics.Service
	ReconcilerSvc   *reconciler.Reconciler  `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics     `optional:"true"`
	ActionLimiter   *ratelimit.ActionLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		genID:           p.GenID,
		accountSvc:      p.AccountSvc,
		apiKeySvc:       p.APIKeySvc,
		ledgerSvc:       p.LedgerSvc,
		gatewaySvc:      p.GatewaySvc,
		pricingTable:    p.PricingTable,
		projectSvc:      p.ProjectSvc,
		taskSvc:         p.TaskSvc,
		marketplaceSvc:  p.MarketplaceSvc,
		notificationSvc: p.NotificationSvc,
		analyticsSvc:    p.AnalyticsSvc,
		reconcilerSvc:   p.ReconcilerSvc,
		obsMetrics:      p.ObsMetrics,
		actionLimiter:   p.ActionLimiter,
	}

	svc.registerPublicRoutes()
	svc.registerAPIRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerPublicRoutes() {
	v1 := s.engine.Group("/v1")

	v1.POST("/signup", s.Signup)
	v1.GET("/pricing", s.GetPricing)
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1", s.APIKeyRequired())

	// -------- Account --------
	v1.GET("/account", s.GetAccount)
	v1.GET("/account/balance", s.GetBalance)
	v1.GET("/account/history", s.ListHistory)

	// -------- Actions --------
	v1.POST("/actions", s.ActionsRateLimit(), s.CreateAction)
	v1.GET("/actions/:id", s.GetAction)

	// -------- API Keys --------
	v1.GET("/api_keys", s.ListAPIKeys)
	v1.POST("/api_keys", s.CreateAPIKey)
	v1.DELETE("/api_keys/:id", s.RevokeAPIKey)

	// -------- Projects --------
	v1.GET("/projects", s.ListProjects)
	v1.POST("/projects", s.CreateProject)
	v1.GET("/projects/:id", s.GetProject)
	v1.PATCH("/projects/:id", s.UpdateProject)
	v1.DELETE("/projects/:id", s.DeleteProject)

	// -------- Tasks --------
	v1.GET("/tasks", s.ListTasks)
	v1.POST("/tasks", s.CreateTask)
	v1.GET("/tasks/:id", s.GetTask)
	v1.PATCH("/tasks/:id", s.UpdateTask)
	v1.DELETE("/tasks/:id", s.DeleteTask)

	// -------- Marketplace --------
	v1.GET("/marketplace/items", s.ListMarketplaceItems)
	v1.POST("/marketplace/items", s.PublishMarketplaceItem)
	v1.GET("/marketplace/items/:id", s.GetMarketplaceItem)
	v1.DELETE("/marketplace/items/:id", s.DelistMarketplaceItem)
	v1.POST("/marketplace/items/:id/purchase", s.PurchaseMarketplaceItem)
	v1.POST("/marketplace/items/:id/rate", s.RateMarketplaceItem)
	v1.GET("/marketplace/purchases", s.ListMarketplacePurchases)

	// -------- Notifications --------
	v1.GET("/notifications", s.ListNotifications)
	v1.POST("/notifications/:id/read", s.MarkNotificationRead)
	v1.POST("/notifications/read_all", s.MarkAllNotificationsRead)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin", s.APIKeyRequired(), s.AdminRequired())

	admin.GET("/overview", s.GetOverview)
	admin.POST("/accounts/:id/grant", s.GrantCredits)
	admin.POST("/accounts/:id/deactivate", s.DeactivateAccount)
	admin.POST("/sweep", s.RunSweep)
}
