package daemon

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/statsval/pkg/config"
	"github.com/charlie0129/statsval/pkg/types"
	"github.com/charlie0129/statsval/pkg/validation"
	"github.com/charlie0129/statsval/pkg/version"
)

const (
	keepAliveInterval = 15 * time.Second
	upcomingRuns      = 5
)

func abortWithError(c *gin.Context, code int, err error) {
	c.IndentedJSON(code, err.Error())
	_ = c.AbortWithError(code, err)
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}

func (s *server) getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(s.conf)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func (s *server) getChecks(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, s.registry.Checks())
}

func (s *server) postRun(c *gin.Context) {
	var req types.TriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	run, err := s.runs.Start(TriggerManual, req.Checks)
	switch {
	case errors.Is(err, validation.ErrUnknownCheck):
		abortWithError(c, http.StatusBadRequest, err)
		return
	case errors.Is(err, ErrBusy):
		abortWithError(c, http.StatusConflict, err)
		return
	case err != nil:
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}

	c.IndentedJSON(http.StatusAccepted, types.TriggerResponse{RunID: run.ID})
}

func (s *server) getRuns(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, s.runs.List())
}

func (s *server) getLatestRun(c *gin.Context) {
	run, ok := s.runs.Latest()
	if !ok {
		abortWithError(c, http.StatusNotFound, errors.New("no runs yet"))
		return
	}
	c.IndentedJSON(http.StatusOK, run)
}

func (s *server) getRun(c *gin.Context) {
	id := c.Param("id")
	run, ok := s.runs.Get(id)
	if !ok {
		abortWithError(c, http.StatusNotFound, errors.New("no run with id "+id))
		return
	}
	c.IndentedJSON(http.StatusOK, run)
}

func (s *server) scheduleStatus() types.ScheduleStatus {
	st := types.ScheduleStatus{Cron: s.conf.Schedule()}
	next := s.scheduler.Next(upcomingRuns + 1)
	if len(next) > 0 {
		st.Enabled = true
		st.NextRun = &next[0]
		st.Next = next[1:]
	}
	return st
}

func (s *server) getSchedule(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, s.scheduleStatus())
}

func (s *server) setSchedule(c *gin.Context) {
	var expr string
	if err := c.BindJSON(&expr); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}
	if expr == "" {
		abortWithError(c, http.StatusBadRequest, errors.New("cron expression is empty, use DELETE to disable the schedule"))
		return
	}

	sh, err := s.scheduler.Parse(expr)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	if err := s.scheduler.Schedule(expr); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	s.conf.SetSchedule(expr)
	if err := s.conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}

	logrus.Infof("set schedule to %q", expr)

	// The scheduler loop applies the change asynchronously, so report the
	// parsed schedule rather than the scheduler state.
	next := sh.Next(time.Now())
	st := types.ScheduleStatus{Cron: expr, Enabled: true, NextRun: &next}
	for t := next; len(st.Next) < upcomingRuns; {
		t = sh.Next(t)
		st.Next = append(st.Next, t)
	}
	c.IndentedJSON(http.StatusCreated, st)
}

func (s *server) deleteSchedule(c *gin.Context) {
	s.scheduler.Clear()

	s.conf.SetSchedule("")
	if err := s.conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}

	logrus.Info("disabled schedule")

	c.IndentedJSON(http.StatusOK, "schedule disabled")
}

func (s *server) skipSchedule(c *gin.Context) {
	if err := s.scheduler.Skip(); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	c.IndentedJSON(http.StatusCreated, "skipped the next scheduled run")
}

func (s *server) postponeSchedule(c *gin.Context) {
	var raw string
	if err := c.BindJSON(&raw); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	if err := s.scheduler.Postpone(d); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	logrus.Infof("postponed next scheduled run by %s", d)

	c.IndentedJSON(http.StatusCreated, "postponed the next scheduled run by "+d.String())
}

func (s *server) streamEvents(c *gin.Context) {
	ch := s.hub.Subscribe()
	defer s.hub.Unsubscribe(ch)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	// Flush headers so clients see the subscription before the first event.
	_, _ = c.Writer.WriteString(": connected\n\n")
	c.Writer.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, json.RawMessage(ev.Data))
			return true
		case <-ticker.C:
			_, _ = io.WriteString(w, ": keep-alive\n\n")
			return true
		case <-s.ctx.Done():
			return false
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (s *server) metricsHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
}
