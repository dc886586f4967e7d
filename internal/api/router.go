package api

import (
	"github.com/gin-gonic/gin"
	"github.com/wfunc/cash-kiosk/internal/kiosk"
	"go.uber.org/zap"
)

// Router 操作端API路由器
type Router struct {
	engine       *gin.Engine
	kioskHandler *KioskHandler
	wsHandler    *WebSocketHandler
	log          *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(runtime *kiosk.Runtime, log *zap.Logger) *Router {
	// 创建Gin引擎
	engine := gin.New()

	// 全局中间件
	engine.Use(gin.Recovery())
	engine.Use(gin.Logger())

	router := &Router{
		engine:       engine,
		kioskHandler: NewKioskHandler(runtime, log),
		wsHandler:    NewWebSocketHandler(runtime, log),
		log:          log,
	}

	// 设置路由
	router.setupRoutes()

	return router
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	// 健康检查
	r.engine.GET("/health", r.healthCheck)

	// API v1路由组
	v1 := r.engine.Group("/api/v1")
	{
		v1.GET("/status", r.kioskHandler.GetStatus)
		v1.POST("/sell", r.kioskHandler.Sell)
		v1.POST("/restart", r.kioskHandler.Restart)
		v1.GET("/events", r.kioskHandler.QueryEvents)
	}

	// WebSocket路由
	ws := r.engine.Group("/ws")
	{
		ws.GET("/events", r.wsHandler.EventsWebSocket)
	}

	// 404处理
	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{
			"code":    "NOT_FOUND",
			"message": "接口不存在",
		})
	})
}

// healthCheck 健康检查
func (r *Router) healthCheck(c *gin.Context) {
	c.JSON(200, gin.H{
		"status":  "healthy",
		"message": "服务运行正常",
	})
}

// Run 运行服务器
func (r *Router) Run(addr string) error {
	r.log.Info("Starting API server", zap.String("address", addr))
	return r.engine.Run(addr)
}

// GetEngine 获取Gin引擎（用于测试）
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
