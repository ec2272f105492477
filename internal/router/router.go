package router

import (
	"strings"

	"fairtrace/internal/config"
	"fairtrace/internal/graph"
	"fairtrace/internal/handler"
	"fairtrace/internal/infra"
	"fairtrace/internal/middleware"
	"fairtrace/internal/model"
	"fairtrace/internal/repository"
	"fairtrace/internal/service"
	"fairtrace/internal/worker"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Deps are the process-wide collaborators built in main.
type Deps struct {
	DB          *gorm.DB
	Redis       *redis.Client
	Breaker     *infra.CircuitBreaker
	Dispatcher  *worker.Dispatcher
	RateLimiter *middleware.IPRateLimiter
}

// New wires all dependencies and returns a configured Gin engine.
// Dependency graph: Handler ← Service ← Repository ← DB/Redis
func New(cfg *config.Config, d Deps) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS(splitOrigins(cfg.AllowedOrigins)))
	r.Use(middleware.ErrorHandler())
	if d.RateLimiter != nil {
		r.Use(d.RateLimiter.Middleware())
	}

	// ── Repositories ─────────────────────────────────────────────────────────
	userRepo := repository.NewUserRepository(d.DB)
	nodeRepo := repository.NewNodeRepository(d.DB)
	themeRepo := repository.NewThemeRepository(d.DB)
	batchRepo := repository.NewBatchRepository(d.DB)
	txnRepo := repository.NewTransactionRepository(d.DB)
	claimRepo := repository.NewClaimRepository(d.DB)
	txnEdges := repository.NewEdgeRepository(d.DB, model.TransactionEdgesTable)
	batchEdges := repository.NewEdgeRepository(d.DB, model.BatchEdgesTable)
	connEdges := repository.NewEdgeRepository(d.DB, model.ConnectionEdgesTable)

	var cache repository.ResolverCache = repository.NewMemoryResolverCache()
	if d.Redis != nil {
		cache = repository.NewRedisResolverCache(d.Redis)
	}

	// ── Graphs ───────────────────────────────────────────────────────────────
	txnGraph := graph.New(txnEdges.Store(nil), cfg.TraceMaxNodes)
	batchGraph := graph.New(batchEdges.Store(nil), cfg.TraceMaxNodes)
	connGraph := graph.New(connEdges.Store(nil), cfg.TraceMaxNodes)

	// ── Services ─────────────────────────────────────────────────────────────
	reporter := service.NewReporter(d.Dispatcher)
	authSvc := service.NewAuthService(userRepo, nodeRepo, cfg)
	nodeSvc := service.NewNodeService(nodeRepo, themeRepo, connEdges, connGraph, d.DB)
	claimSvc := service.NewClaimService(claimRepo, batchRepo, nodeRepo, d.Dispatcher)
	batchSvc := service.NewBatchService(service.BatchServiceDeps{
		BatchRepo:  batchRepo,
		TxnRepo:    txnRepo,
		NodeRepo:   nodeRepo,
		Claims:     claimSvc,
		TxnEdges:   txnEdges,
		BatchEdges: batchEdges,
		TxnGraph:   txnGraph,
		BatchGraph: batchGraph,
		Reporter:   reporter,
		Dispatcher: d.Dispatcher,
	})
	resolver := service.NewResolver(service.ResolverDeps{
		TxnRepo:    txnRepo,
		BatchRepo:  batchRepo,
		TxnGraph:   txnGraph,
		BatchGraph: batchGraph,
		Cache:      cache,
		TTL:        cfg.TraceCacheTTL(),
		Reporter:   reporter,
		MaxNodes:   cfg.TraceMaxNodes,
	})
	traceSvc := service.NewTraceService(batchRepo, nodeRepo, claimRepo, themeRepo, resolver)

	// ── Handlers ─────────────────────────────────────────────────────────────
	authH := handler.NewAuthHandler(authSvc)
	usersH := handler.NewUsersHandler(authSvc)
	nodesH := handler.NewNodesHandler(nodeSvc)
	batchesH := handler.NewBatchesHandler(batchSvc)
	claimsH := handler.NewClaimsHandler(claimSvc)
	traceH := handler.NewTraceHandler(traceSvc)

	// ── Routes ───────────────────────────────────────────────────────────────

	// Public
	r.GET("/health", handler.Health(d.DB, d.Redis, d.Breaker))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := r.Group("/v1/auth")
	{
		auth.POST("/login", authH.Login)
		auth.POST("/refresh", authH.Refresh)
	}

	// Consumer-facing traces, rendered with the holder's theme
	pub := r.Group("/v1/public/trace/:theme_id/:batch_id")
	{
		pub.GET("/map", traceH.PublicMap)
		pub.GET("/stages", traceH.PublicStages)
		pub.GET("/claims", traceH.PublicClaims)
		pub.GET("/report.pdf", traceH.PublicReport)
	}

	// Protected routes; every token acts for one (user, node)
	admin := middleware.RequireRole(string(model.RoleAdmin))
	v1 := r.Group("/v1", middleware.JWTAuth(cfg.JWTSecret))
	{
		v1.POST("/users", usersH.Create)
		v1.PATCH("/users/:id/deactivate", usersH.Deactivate)
		v1.PATCH("/users/:id/reactivate", usersH.Reactivate)

		v1.POST("/nodes", admin, nodesH.Create)
		v1.GET("/nodes/:id", nodesH.Get)
		v1.GET("/nodes/:id/users", usersH.ListByNode)
		v1.PUT("/nodes/:id/operation", nodesH.SetOperation)
		v1.POST("/nodes/:id/suppliers", nodesH.AddSupplier)
		v1.DELETE("/nodes/:id/suppliers/:supplier_id", nodesH.RemoveSupplier)
		v1.GET("/nodes/:id/supplier-tiers", nodesH.SupplierTiers)
		v1.POST("/supply-chains", admin, nodesH.CreateSupplyChain)
		v1.POST("/themes", nodesH.CreateTheme)

		batches := v1.Group("/batches")
		{
			batches.POST("", batchesH.Create)
			batches.GET("", batchesH.List)
			batches.GET("/:id", batchesH.Get)
			batches.POST("/:id/archive", batchesH.Archive)
			batches.POST("/:id/consume", batchesH.Consume)
		}

		txns := v1.Group("/transactions")
		{
			txns.POST("/external", batchesH.CreateExternal)
			txns.POST("/internal", batchesH.CreateInternal)
			txns.GET("/:id", batchesH.GetTransaction)
		}

		claims := v1.Group("/claims")
		{
			claims.POST("", admin, claimsH.Create)
			claims.POST("/attach", claimsH.Attach)
			claims.POST("/inheritable", claimsH.Inheritable)
			claims.POST("/stock-requests", claimsH.CreateStockRequest)
		}

		tr := v1.Group("/trace/:batch_id")
		{
			tr.GET("/map", traceH.Map)
			tr.GET("/stages", traceH.Stages)
			tr.GET("/claims", traceH.Claims)
			tr.GET("/transactions", traceH.Transactions)
		}
	}

	// Swagger UI, outside production only
	if cfg.Env != "production" {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	return r
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
