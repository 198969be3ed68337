package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	pkgerrors "github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	ginlogrus "github.com/toorop/gin-logrus"

	"github.com/charlie0129/statsval/pkg/adb"
	"github.com/charlie0129/statsval/pkg/config"
	"github.com/charlie0129/statsval/pkg/events"
	"github.com/charlie0129/statsval/pkg/sink"
	"github.com/charlie0129/statsval/pkg/validation"
)

const (
	shutdownTimeout = 5 * time.Second
	runDrainTimeout = time.Minute
	precheckTimeout = 30 * time.Second
)

type server struct {
	ctx       context.Context
	conf      config.Config
	runner    adb.Runner
	registry  *validation.Registry
	hub       *events.EventHub
	runs      *runManager
	scheduler *Scheduler
	gatherer  prometheus.Gatherer
}

// newServer wires the run manager and scheduler. reg receives the daemon
// collectors and is served on /metrics. results may be nil.
func newServer(
	ctx context.Context,
	conf config.Config,
	runner adb.Runner,
	registry *validation.Registry,
	history *RunHistory,
	results sink.Sink,
	reg *prometheus.Registry,
) *server {
	s := &server{
		ctx:      ctx,
		conf:     conf,
		runner:   runner,
		registry: registry,
		hub:      events.NewEventHub(),
		gatherer: reg,
	}
	s.runs = &runManager{
		conf:     conf,
		runner:   runner,
		registry: registry,
		history:  history,
		hub:      s.hub,
		metrics:  NewMetrics(reg),
		sink:     results,
		ctx:      ctx,
	}
	s.scheduler = NewScheduler(s.scheduledRun, s.precheck, s.onUpcoming, s.onScheduleError)
	return s
}

func (s *server) scheduledRun() error {
	_, err := s.runs.Start(TriggerSchedule, nil)
	return err
}

func (s *server) precheck() error {
	if r, ok := s.runs.Current(); ok {
		return pkgerrors.Wrapf(ErrBusy, "run %s", r.ID)
	}
	ctx, cancel := context.WithTimeout(s.ctx, precheckTimeout)
	defer cancel()
	return validation.CheckDevicesReady(ctx, s.conf, s.runner)
}

func (s *server) onUpcoming(data any) {
	if t, ok := data.(time.Time); ok {
		logrus.Infof("scheduled validation run at %s", t.Format(time.DateTime))
	}
}

func (s *server) onScheduleError(data any) {
	if err, ok := data.(error); ok {
		logrus.WithError(err).Warn("scheduled validation run")
	}
}

// applySchedule points the scheduler at the configured cron expression.
func (s *server) applySchedule() error {
	expr := s.conf.Schedule()
	if expr == "" {
		s.scheduler.Clear()
		return nil
	}
	return s.scheduler.Schedule(expr)
}

func (s *server) setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginlogrus.Logger(logrus.StandardLogger()))
	router.GET("/version", getVersion)
	router.GET("/config", s.getConfig)
	router.GET("/checks", s.getChecks)
	router.POST("/runs", s.postRun)
	router.GET("/runs", s.getRuns)
	router.GET("/runs/latest", s.getLatestRun)
	router.GET("/runs/:id", s.getRun)
	router.GET("/schedule", s.getSchedule)
	router.PUT("/schedule", s.setSchedule)
	router.DELETE("/schedule", s.deleteSchedule)
	router.POST("/schedule/skip", s.skipSchedule)
	router.POST("/schedule/postpone", s.postponeSchedule)
	router.GET("/events", s.streamEvents)
	router.GET("/metrics", s.metricsHandler())

	return router
}

// listen creates the unix socket, removing a stale one left by a previous
// daemon that did not exit cleanly.
func listen(unixSocketPath string) (net.Listener, error) {
	if _, err := os.Stat(unixSocketPath); err == nil {
		if conn, err := net.Dial("unix", unixSocketPath); err == nil {
			_ = conn.Close()
			return nil, pkgerrors.Errorf("another daemon is listening on %s", unixSocketPath)
		}
		logrus.Warnf("removing stale socket %s", unixSocketPath)
		if err := os.Remove(unixSocketPath); err != nil {
			return nil, pkgerrors.Wrapf(err, "failed to remove stale socket %s", unixSocketPath)
		}
	}
	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to listen on %s", unixSocketPath)
	}
	return l, nil
}

func Run(configPath string, unixSocketPath string, allowNonRoot bool) error {
	conf, err := config.NewFile(configPath)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to parse config during startup")
	}
	logrus.WithFields(conf.LogrusFields()).Infof("config loaded")

	history := NewRunHistory(conf.HistorySize(), configPath+".history.json")
	if err := history.Load(); err != nil {
		logrus.Warnf("failed to load run history: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var results sink.Sink
	if cfg := conf.Influx(); cfg.Enabled() {
		influx, err := sink.NewInflux(ctx, cfg)
		if err != nil {
			logrus.Warnf("results will not be exported: %v", err)
		} else {
			results = influx
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	s := newServer(ctx, conf, adb.ExecRunner{}, validation.DefaultRegistry(), history, results, reg)
	if err := s.applySchedule(); err != nil {
		logrus.Errorf("ignoring schedule: %v", err)
	}
	s.scheduler.Start()

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			err := conf.Load()
			if err != nil {
				logrus.Errorf("failed to reload config: %v", err)
				continue
			}
			history.SetMaxRecordCount(conf.HistorySize())
			if err := s.applySchedule(); err != nil {
				logrus.Errorf("ignoring schedule: %v", err)
			}
			logrus.Infof("config reloaded")
		}
	}()

	srv := &http.Server{
		Handler: s.setupRoutes(),
	}

	l, err := listen(unixSocketPath)
	if err != nil {
		return err
	}

	if conf.AllowNonRootAccess() || allowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", unixSocketPath)
		if err := os.Chmod(unixSocketPath, 0777); err != nil {
			return pkgerrors.Wrapf(err, "failed to chmod %s", unixSocketPath)
		}
	}

	serveErr := make(chan error, 1)
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigc:
		logrus.Infof("caught signal \"%s\": shutting down.", sig)
	case err = <-serveErr:
		logrus.Errorf("http server failed: %v", err)
	}

	// Cancelling stops event streams and interrupts runs. Their teardown
	// still restores device state.
	cancel()

	logrus.Info("shutting down http server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	shutdownCancel()

	logrus.Info("stopping scheduler")
	s.scheduler.Stop()

	if !s.runs.Wait(runDrainTimeout) {
		logrus.Warn("validation run did not finish in time")
	}

	if results != nil {
		results.Close()
	}

	logrus.Info("exiting")
	return err
}
