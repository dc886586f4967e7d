package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/wfunc/cash-kiosk/internal/api"
	"github.com/wfunc/cash-kiosk/internal/config"
	"github.com/wfunc/cash-kiosk/internal/database"
	"github.com/wfunc/cash-kiosk/internal/errors"
	"github.com/wfunc/cash-kiosk/internal/kiosk"
	"github.com/wfunc/cash-kiosk/internal/logger"
	"github.com/wfunc/cash-kiosk/internal/repository"
	"go.uber.org/zap"

	"github.com/gin-gonic/gin"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Server 服务器实例
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	runtime    *kiosk.Runtime
	httpServer *http.Server

	shutdownCh chan struct{}
}

func main() {
	// 命令行参数
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		showVersion = flag.Bool("version", false, "显示版本信息")
		showHelp    = flag.Bool("help", false, "显示帮助信息")
	)

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if *showHelp {
		printHelp()
		os.Exit(0)
	}

	// 加载配置
	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Get()

	// 初始化日志系统
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	printStartInfo(cfg)

	// 创建服务器实例
	server := NewServer(cfg)

	// 启动服务器
	if err := server.Start(); err != nil {
		logger.Fatal("服务器启动失败", zap.Error(err))
	}

	// 等待退出信号
	server.WaitForShutdown()

	// 优雅关闭
	if err := server.Shutdown(); err != nil {
		logger.Error("服务器关闭失败", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("服务器已安全关闭")
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config) *Server {
	return &Server{
		cfg:        cfg,
		logger:     logger.GetLogger(),
		shutdownCh: make(chan struct{}),
	}
}

// Start 启动服务器
func (s *Server) Start() error {
	s.logger.Info("正在启动售货亭控制服务...",
		zap.String("version", Version),
		zap.Bool("mock_mode", s.cfg.Serial.MockMode),
	)

	// 初始化事件流水存储（失败时降级运行，不落流水）
	events := s.initEventStore()

	// 装配设备与运行时
	devices := kiosk.BuildDevices(s.cfg)
	s.runtime = kiosk.NewRuntime(s.cfg, devices, events)

	if err := s.runtime.Start(); err != nil {
		return errors.Wrap(err, errors.ErrUnknown, "启动售货亭运行时失败")
	}

	// 启动HTTP服务
	if err := s.startHTTPServer(); err != nil {
		return err
	}

	s.logger.Info("服务器启动成功",
		zap.String("http", fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)),
	)

	return nil
}

// initEventStore 初始化事件流水存储
func (s *Server) initEventStore() *repository.CashEventRepository {
	if err := database.Init(&s.cfg.Database); err != nil {
		s.logger.Warn("数据库初始化失败，事件流水将不落库", zap.Error(err))
		return nil
	}

	if !database.IsConnected() {
		s.logger.Warn("数据库连接检查失败，事件流水将不落库")
		return nil
	}

	s.logger.Info("数据库初始化完成")
	return repository.NewCashEventRepository(database.GetDB())
}

// startHTTPServer 启动HTTP服务
func (s *Server) startHTTPServer() error {
	switch s.cfg.Server.Mode {
	case "production", "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	router := api.NewRouter(s.runtime, s.logger)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:      router.GetEngine(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP服务异常退出", zap.Error(err))
			close(s.shutdownCh)
		}
	}()

	return nil
}

// WaitForShutdown 等待关闭信号
func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)

	select {
	case sig := <-sigCh:
		s.logger.Info("收到退出信号", zap.String("signal", sig.String()))
	case <-s.shutdownCh:
		s.logger.Warn("内部服务故障，触发退出")
	}
}

// Shutdown 优雅关闭服务器
func (s *Server) Shutdown() error {
	s.logger.Info("正在优雅关闭服务器...")

	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// 停止接收新请求
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("HTTP服务关闭失败", zap.Error(err))
		}
	}

	// 停止运行时（停收款、停事件循环、断开设备）
	if s.runtime != nil {
		s.runtime.Stop()
	}

	// 关闭数据库连接
	if err := database.Close(); err != nil {
		s.logger.Error("关闭数据库失败", zap.Error(err))
	}

	// 同步日志
	logger.Cleanup()

	return nil
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("售货亭控制服务\n")
	fmt.Printf("版本: %s\n", Version)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("Git提交: %s\n", GitCommit)
	fmt.Printf("Go版本: %s\n", runtime.Version())
	fmt.Printf("操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// printHelp 打印帮助信息
func printHelp() {
	fmt.Println("售货亭控制服务")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  cash-kiosk [选项]")
	fmt.Println()
	fmt.Println("选项:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("环境变量:")
	fmt.Println("  CASH_KIOSK_*           覆盖配置项（如 CASH_KIOSK_SERVER_PORT）")
	fmt.Println()
	fmt.Println("示例:")
	fmt.Println("  cash-kiosk -config=/path/to/config.yaml")
	fmt.Println("  cash-kiosk -version")
}

// printStartInfo 打印启动信息
func printStartInfo(cfg *config.Config) {
	fmt.Println("═══════════════════════════════════════════════")
	fmt.Println("              售货亭现金控制服务")
	fmt.Println("═══════════════════════════════════════════════")
	fmt.Printf("版本: %s | 模式: %s | PID: %d\n", Version, cfg.Server.Mode, os.Getpid())
	fmt.Println("═══════════════════════════════════════════════")
}
