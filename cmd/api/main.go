package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/demartbuy-afk/notifyedu/internal/attendance"
	"github.com/demartbuy-afk/notifyedu/internal/auth"
	"github.com/demartbuy-afk/notifyedu/internal/config"
	"github.com/demartbuy-afk/notifyedu/internal/directory"
	"github.com/demartbuy-afk/notifyedu/internal/httpmiddleware"
	"github.com/demartbuy-afk/notifyedu/internal/notify"
	"github.com/demartbuy-afk/notifyedu/internal/queue"
	"github.com/demartbuy-afk/notifyedu/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var (
		db   *store.DB
		logs attendance.LogStore
		dir  directory.Directory
	)
	if cfg.StoreBackend == "memory" {
		logs = attendance.NewMemoryStore()
		dir = directory.NewMemory()
	} else {
		var err error
		db, err = store.NewDB(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Migrate(context.Background()); err != nil {
			return err
		}
		logs = attendance.NewRepository(db.Client)
		dir = directory.NewPostgres(db.Client)
	}

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "")
	}

	svc := attendance.NewService(logs, dir, notify.NewQueueNotifier(q))

	var limiter httpmiddleware.Limiter
	if cfg.StoreBackend == "memory" {
		limiter = httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	} else {
		limiter = httpmiddleware.NewRedisWindow(redisClient.Client, "", cfg.RateLimitPerMin, time.Minute)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.RateLimit(limiter))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db == nil || db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	// Token issuance for provisioned callers. Identity verification proper
	// lives outside this service; the provision key gates who may mint.
	r.POST("/v1/auth/token", func(c *gin.Context) {
		if cfg.ProvisionKey != "" && c.GetHeader("X-Provision-Key") != cfg.ProvisionKey {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid provision key"})
			return
		}
		var req struct {
			Subject  string `json:"subject" binding:"required"`
			Role     string `json:"role" binding:"required"`
			SchoolID string `json:"school_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		tokens, err := auth.Issue(req.Subject, req.Role, req.SchoolID, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	v1 := r.Group("/v1", auth.Bearer(cfg.JWTSigningKey, cfg.JWTIssuer))

	markers := v1.Group("", auth.RequireRole(string(attendance.RoleSchool), string(attendance.RoleAcademicWork)))

	markers.POST("/attendance/mark", func(c *gin.Context) {
		var req struct {
			EntityID   string `json:"entity_id" binding:"required"`
			EntityType string `json:"entity_type"`
			Status     string `json:"status" binding:"required"`
			Mode       string `json:"mode"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		claims := auth.FromContext(c)
		entityType := attendance.EntityType(req.EntityType)
		if entityType == "" {
			entityType = attendance.EntityStudent
		}
		mode := attendance.Mode(req.Mode)
		if mode == "" {
			mode = attendance.ModeManual
		}
		logEntry, err := svc.Mark(c.Request.Context(), attendance.Role(claims.Role), claims.SchoolID,
			req.EntityID, attendance.Status(req.Status), mode, entityType)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, logEntry)
	})

	// Guards reuse the school-side QR flow with the scope of their assigned
	// school.
	v1.POST("/attendance/qr", auth.RequireRole(
		string(attendance.RoleSchool), string(attendance.RoleAcademicWork), string(attendance.RoleGuard),
	), func(c *gin.Context) {
		var req struct {
			QRValue string `json:"qr_value" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		claims := auth.FromContext(c)
		role := attendance.Role(claims.Role)
		if role == attendance.RoleGuard {
			role = attendance.RoleSchool
		}
		logEntry, name, err := svc.MarkByQR(c.Request.Context(), role, claims.SchoolID, req.QRValue)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"log": logEntry, "entity_name": name})
	})

	v1.POST("/attendance/bus-scan", auth.RequireRole(string(attendance.RoleBus)), func(c *gin.Context) {
		var req struct {
			QRValue string `json:"qr_value" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		claims := auth.FromContext(c)
		logEntry, name, err := svc.BusScan(c.Request.Context(), claims.SchoolID, req.QRValue)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"log": logEntry, "entity_name": name})
	})

	v1.POST("/attendance/self-scan", auth.RequireRole(string(attendance.RoleStudent)), func(c *gin.Context) {
		var req struct {
			QRValue string `json:"qr_value" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		claims := auth.FromContext(c)
		logEntry, err := svc.SelfScan(c.Request.Context(), claims.Subject, req.QRValue, cfg.LocationQRValue)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, logEntry)
	})

	markers.POST("/attendance/sweep", func(c *gin.Context) {
		claims := auth.FromContext(c)
		count, err := svc.SweepAbsent(c.Request.Context(), attendance.Role(claims.Role), claims.SchoolID)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"marked_absent": count})
	})

	markers.GET("/attendance/today", func(c *gin.Context) {
		claims := auth.FromContext(c)
		res, err := svc.TodaysLogs(c.Request.Context(), claims.SchoolID)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"logs": res})
	})

	markers.GET("/attendance/monthly", func(c *gin.Context) {
		claims := auth.FromContext(c)
		res, err := svc.MonthlyLogs(c.Request.Context(), claims.SchoolID)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"logs": res})
	})

	v1.GET("/attendance/history/:entityId", func(c *gin.Context) {
		entityType := attendance.EntityType(c.DefaultQuery("type", string(attendance.EntityStudent)))
		var (
			res []attendance.Log
			err error
		)
		if day := c.Query("date"); day != "" {
			res, err = svc.HistoryForDate(c.Request.Context(), c.Param("entityId"), entityType, day)
		} else {
			res, err = svc.History(c.Request.Context(), c.Param("entityId"), entityType)
		}
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"logs": res})
	})

	v1.GET("/students/:id/analytics", func(c *gin.Context) {
		claims := auth.FromContext(c)
		if claims.Role == string(attendance.RoleStudent) && claims.Subject != c.Param("id") {
			c.JSON(http.StatusForbidden, gin.H{"error": "not your record"})
			return
		}
		res, err := svc.Analytics(c.Request.Context(), c.Param("id"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	})

	schoolOnly := v1.Group("", auth.RequireRole(string(attendance.RoleSchool)))

	schoolOnly.POST("/entities", func(c *gin.Context) {
		var req struct {
			ID          string `json:"id" binding:"required"`
			Kind        string `json:"kind" binding:"required"`
			Name        string `json:"name" binding:"required"`
			Class       string `json:"class"`
			RollNo      string `json:"roll_no"`
			ParentPhone string `json:"parent_phone"`
			Subject     string `json:"subject"`
			Phone       string `json:"phone_number"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		claims := auth.FromContext(c)
		e := directory.Entity{
			ID:          req.ID,
			Kind:        directory.Kind(req.Kind),
			SchoolID:    claims.SchoolID,
			Name:        req.Name,
			Class:       req.Class,
			RollNo:      req.RollNo,
			ParentPhone: req.ParentPhone,
			Subject:     req.Subject,
			Phone:       req.Phone,
		}
		e.QRValue = directory.QRValue(e.Kind, e.ID, e.SchoolID)
		if err := dir.Upsert(c.Request.Context(), e); err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, e)
	})

	markers.GET("/entities", func(c *gin.Context) {
		claims := auth.FromContext(c)
		kind := directory.Kind(c.DefaultQuery("kind", string(directory.KindStudent)))
		res, err := dir.ListBySchool(c.Request.Context(), claims.SchoolID, kind)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"entities": res})
	})

	schoolOnly.DELETE("/entities/:kind/:id", func(c *gin.Context) {
		claims := auth.FromContext(c)
		kind := directory.Kind(c.Param("kind"))
		e, err := dir.Resolve(c.Request.Context(), kind, c.Param("id"))
		if err != nil || e.SchoolID != claims.SchoolID {
			c.JSON(http.StatusNotFound, gin.H{"error": "entity not found"})
			return
		}
		entityType := attendance.EntityStudent
		if kind == directory.KindTeacher {
			entityType = attendance.EntityTeacher
		}
		if err := svc.DeleteEntity(c.Request.Context(), e.ID, entityType); err != nil {
			abortWithError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced shutdown: %v", err)
	}

	log.Println("server exited")
	return nil
}

// abortWithError maps the attendance error taxonomy onto HTTP statuses.
func abortWithError(c *gin.Context, err error) {
	var (
		authzErr *attendance.AuthorizationError
		invErr   *attendance.InvalidTransitionError
		malErr   *attendance.MalformedInputError
	)
	switch {
	case errors.Is(err, attendance.ErrNotFound) || errors.Is(err, directory.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &authzErr):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.As(err, &invErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":       err.Error(),
			"last_status": invErr.Last,
			"requested":   invErr.Requested,
		})
	case errors.As(err, &malErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
