package api

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Server API服务器
type Server struct {
	router *gin.Engine
	srv    *http.Server
	log    *zap.Logger
}

// NewServer 创建新的API服务器
func NewServer(port string, readTimeout, writeTimeout time.Duration, logger *zap.Logger) *Server {
	router := gin.New()

	// 设置中间件
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	return &Server{
		router: router,
		srv:    srv,
		log:    logger,
	}
}

// Router 暴露路由器，测试用
func (s *Server) Router() *gin.Engine {
	return s.router
}

// SetupRoutes 设置路由
func (s *Server) SetupRoutes(handlers *Handlers) {
	// 健康检查
	s.router.GET("/health", handlers.HealthCheck)
	s.router.GET("/ready", handlers.ReadinessCheck)

	// API v1 路由组
	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/validate", handlers.ValidateTree)

		alerts := v1.Group("/alerts")
		{
			alerts.POST("", handlers.CreateAlert)
			alerts.GET("", handlers.ListAlerts)
			alerts.GET("/:id", handlers.GetAlert)
			alerts.PUT("/:id", handlers.UpdateAlert)
			alerts.DELETE("/:id", handlers.DeleteAlert)
			alerts.POST("/:id/pause", handlers.PauseAlert)
			alerts.POST("/:id/resume", handlers.ResumeAlert)
			alerts.POST("/:id/test", handlers.TestAlert)
			alerts.POST("/:id/fork", handlers.ForkAlert)
			alerts.POST("/:id/backtest", handlers.BacktestAlert)
			alerts.GET("/:id/triggers", handlers.ListTriggers)
		}
	}
}

// Start 启动服务器并等待中断信号
func (s *Server) Start() {
	// 在goroutine中启动服务器
	go func() {
		s.log.Info("API服务器启动", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Fatal("启动服务器失败", zap.Error(err))
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	s.log.Info("正在关闭服务器...")

	// 设置超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 优雅关闭
	if err := s.srv.Shutdown(ctx); err != nil {
		s.log.Fatal("服务器关闭失败", zap.Error(err))
	}

	s.log.Info("服务器已关闭")
}
