package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"excel2web/internal/api"
	"excel2web/internal/config"
	"excel2web/internal/importer"
	"excel2web/internal/logging"
	"excel2web/internal/metrics"
	"excel2web/internal/report"
	"excel2web/internal/store"
)

// Server HTTP服务器
type Server struct {
	cfg    *config.AppConfig
	log    logrus.FieldLogger
	router *gin.Engine
	store  *store.Store
	worker *importer.Worker
	events *api.ProgressHub
	http   *http.Server
	cancel context.CancelFunc
}

// NewServer 创建服务器：导入任务池、报表引擎与路由
func NewServer(cfg *config.AppConfig, s *store.Store, log logrus.FieldLogger) *Server {
	if !cfg.Server.DevMode {
		gin.SetMode(gin.ReleaseMode)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewImport(reg)

	coord := importer.NewCoordinator(s, cfg.ETL, log, m)
	worker := importer.NewWorker(s, coord, cfg, log, m)
	events := api.NewProgressHub()
	handler := api.NewHandler(s, report.New(s), importer.NewService(s, worker, cfg.Storage.UploadDir, log), events, log)

	srv := &Server{
		cfg:    cfg,
		log:    log,
		router: gin.New(),
		store:  s,
		worker: worker,
		events: events,
	}
	srv.setupRoutes(handler, reg)
	return srv
}

// setupRoutes 设置路由
func (s *Server) setupRoutes(handler *api.Handler, reg *prometheus.Registry) {
	s.router.Use(gin.Recovery(), logging.GinMiddleware(s.log))

	// CORS
	s.router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	s.router.GET("/health", s.health)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	handler.RegisterRoutes(s.router.Group("/api"))
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Handler 路由（用于测试）
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start 启动任务池、恢复未完成的运行并开始监听；监听失败通过返回的通道报告
func (s *Server) Start(ctx context.Context) <-chan error {
	ctx, s.cancel = context.WithCancel(ctx)
	s.worker.Start(ctx)
	go s.events.Run(ctx, s.worker.Progress())
	if err := s.worker.Resume(ctx); err != nil {
		s.log.WithError(err).Warn("cannot resume pending import runs")
	}

	s.http = &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.http.Addr).Info("http server listening")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()
	return errc
}

// Shutdown 停止接收请求，等待执行中的导入结束
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.http != nil {
		err = s.http.Shutdown(ctx)
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.worker.Stop()
	return err
}
