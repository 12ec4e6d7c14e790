package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alicesolutions/equity_backend/config"
	"github.com/alicesolutions/equity_backend/middlewares"
	"github.com/alicesolutions/equity_backend/models"
	"github.com/alicesolutions/equity_backend/utils"
	"github.com/alicesolutions/equity_backend/workflow"
	"github.com/bsm/redislock"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
)

const defaultPort = "8080"

var tracer = otel.Tracer("smartstart-equity")

type apiServer struct {
	db     *gorm.DB
	engine *workflow.Engine
}

func main() {
	logger := config.GetLogger()

	db := config.ConnectDatabase()
	models.MigrateTable(db)
	config.ConnectRedis()

	audit := workflow.NewAuditRecorder(db, logger)
	defer audit.Close()
	engine := workflow.NewEngine(db, logger, workflow.RealClock{}, audit)

	api := &apiServer{db: db, engine: engine}

	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Correlation-Id"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(middlewares.CorrelationMiddleware())
	router.Use(middlewares.AuthMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/auth/signin", api.signIn)

	router.POST("/projects", api.createProject)
	router.GET("/projects/:id/captable", api.getCapTable)
	router.POST("/users", api.createUser)
	router.GET("/users/:id/portfolio", api.getPortfolio)

	router.POST("/offers", api.createOffer)
	router.GET("/offers/:id", api.getOffer)
	router.POST("/offers/:id/accept", api.acceptOffer)
	router.POST("/offers/:id/reject", api.rejectOffer)
	router.POST("/equity/calculate", api.calculateEquity)

	// Internal: triggered by the external scheduler (daily cron).
	router.POST("/internal/vesting/run", api.runVesting)

	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			config.LogError(logger, "server.go", "main", "ListenAndServe", nil, err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		config.LogError(logger, "server.go", "main", "Shutdown", nil, err)
	}
}

/* handlers */

func (s *apiServer) signIn(c *gin.Context) {
	var input struct {
		BusinessId string `json:"business_id" binding:"required"`
		Username   string `json:"username" binding:"required"`
		Password   string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
		return
	}
	user, token, err := models.SignIn(s.db, c.Request.Context(), input.BusinessId, input.Username, input.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

func (s *apiServer) createProject(c *gin.Context) {
	ctx, ok := s.requireAuth(c)
	if !ok {
		return
	}
	var input models.NewProject
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
		return
	}
	project, err := models.CreateProject(s.db, ctx, &input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, project)
}

func (s *apiServer) createUser(c *gin.Context) {
	ctx, ok := s.requireAuth(c)
	if !ok {
		return
	}
	var input models.NewUser
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
		return
	}
	user, err := models.CreateUser(s.db, ctx, &input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (s *apiServer) getCapTable(c *gin.Context) {
	ctx, ok := s.requireAuth(c)
	if !ok {
		return
	}
	projectId, err := pathId(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	businessId, _ := utils.GetBusinessIdFromContext(ctx)
	state, err := models.GetCapTableState(s.db, ctx, businessId, projectId)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *apiServer) getPortfolio(c *gin.Context) {
	ctx, ok := s.requireAuth(c)
	if !ok {
		return
	}
	userId, err := pathId(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	insight, err := s.engine.GetPortfolioInsights(ctx, userId)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, insight)
}

func (s *apiServer) createOffer(c *gin.Context) {
	ctx, ok := s.requireAuth(c)
	if !ok {
		return
	}
	var input models.NewContractOffer
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
		return
	}
	offer, err := s.engine.CreateOffer(ctx, &input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, offer)
}

func (s *apiServer) getOffer(c *gin.Context) {
	ctx, ok := s.requireAuth(c)
	if !ok {
		return
	}
	contractId, err := pathId(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	offer, err := s.engine.GetOffer(ctx, contractId)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, offer)
}

func (s *apiServer) acceptOffer(c *gin.Context) {
	ctx, ok := s.requireAuth(c)
	if !ok {
		return
	}
	contractId, err := pathId(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	userId, _ := utils.GetUserIdFromContext(ctx)
	offer, err := s.engine.AcceptOffer(ctx, contractId, userId)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, offer)
}

func (s *apiServer) rejectOffer(c *gin.Context) {
	ctx, ok := s.requireAuth(c)
	if !ok {
		return
	}
	contractId, err := pathId(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var input struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&input)

	userId, _ := utils.GetUserIdFromContext(ctx)
	offer, err := s.engine.RejectOffer(ctx, contractId, userId, input.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, offer)
}

func (s *apiServer) calculateEquity(c *gin.Context) {
	var input workflow.EquityInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
		return
	}
	c.JSON(http.StatusOK, workflow.CalculateOptimalEquity(input))
}

func (s *apiServer) runVesting(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "vesting.run")
	defer span.End()

	// Redis lock is a best-effort optimization against overlapping triggers.
	// Reliability must not depend on Redis: the run itself is idempotent per
	// day via IdempotencyKey.
	if locker := config.GetRedisLock(); locker != nil {
		ttl := 5 * time.Minute
		if v, err := strconv.Atoi(os.Getenv("VESTING_RUN_LOCK_TTL")); err == nil && v > 0 {
			ttl = time.Duration(v) * time.Second
		}
		lock, err := locker.Obtain(ctx, "vesting:run", ttl, nil)
		if err == redislock.ErrNotObtained {
			c.JSON(http.StatusConflict, gin.H{"error": "vesting run already in progress"})
			return
		}
		if err == nil {
			defer lock.Release(ctx)
		}
	}

	result, err := s.engine.ProcessVestingEvents(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

/* helpers */

func (s *apiServer) requireAuth(c *gin.Context) (context.Context, bool) {
	ctx := c.Request.Context()
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, false
	}
	return ctx, true
}

func pathId(c *gin.Context) (int, error) {
	return strconv.Atoi(c.Param("id"))
}

func writeError(c *gin.Context, err error) {
	kind := utils.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case utils.ErrorKindValidation, utils.ErrorKindInsufficientReserve:
		status = http.StatusUnprocessableEntity
	case utils.ErrorKindNotFound:
		status = http.StatusNotFound
	case utils.ErrorKindAuthorization:
		status = http.StatusForbidden
	case utils.ErrorKindInvalidState, utils.ErrorKindExpired:
		status = http.StatusConflict
	case utils.ErrorKindTransaction:
		status = http.StatusInternalServerError
	}
	if kind == "" {
		c.JSON(status, gin.H{"error": gin.H{"kind": "INTERNAL", "message": "internal error"}})
		return
	}
	c.JSON(status, gin.H{"error": gin.H{"kind": kind, "message": err.Error()}})
}
