package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cptspacemanspiff/battery-stats/internal/collector"
	"github.com/cptspacemanspiff/battery-stats/internal/stats"
)

const (
	defaultHistoryWindow = 24 * time.Hour
	maxHistoryRange      = 365 * 24 * time.Hour
)

// Engine is the accounting surface served over HTTP.
type Engine interface {
	collector.Sink
	Reset()
	OnBattery() bool
	Pass(at time.Time) stats.Pass
	BatteryStats() []stats.Info
	TotalPowerMah() float64
	UIDs() []int32
	AppStatsMah(uid int32) float64
	AppStatsPercent(uid int32) float64
	PartStatsMah(t stats.ConsumptionType) float64
	PartStatsPercent(t stats.ConsumptionType) float64
	TotalTimeMs(cause stats.Cause, level int16) int64
	UIDTotalTimeMs(uid int32, cause stats.Cause, level int16) int64
	TotalDataCount(cause stats.Cause, uid int32) int64
	TotalConsumptionCount(cause stats.Cause, uid int32) int64
}

// History answers range queries over stored compute passes.
type History interface {
	PassesInRange(from, to int64) ([]stats.Pass, error)
	AppHistory(uid int32, from, to int64) ([]collector.PowerPoint, error)
}

// StatsData is the body of /api/stats and the websocket init message.
type StatsData struct {
	OnBattery bool         `json:"on_battery"`
	TotalMah  float64      `json:"total_mah"`
	Records   []stats.Info `json:"records"`
}

// Handler serves the HTTP API.
type Handler struct {
	logger   *zap.Logger
	engine   Engine
	history  History
	wsHub    *Hub
	upgrader websocket.Upgrader
	compute  func() stats.Pass
	now      func() time.Time
}

// NewHandler creates the HTTP handler. history may be nil.
func NewHandler(logger *zap.Logger, engine Engine, history History, wsHub *Hub) *Handler {
	h := &Handler{
		logger:  logger,
		engine:  engine,
		history: history,
		wsHub:   wsHub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		now: time.Now,
	}
	wsHub.SetInitDataProvider(func() any { return h.statsData() })
	return h
}

// SetComputeFunc replaces the default compute action of POST /api/compute.
// The function is responsible for recording and broadcasting the pass.
func (h *Handler) SetComputeFunc(fn func() stats.Pass) {
	h.compute = fn
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		api.GET("/stats", h.GetStats)
		api.GET("/apps", h.ListApps)
		api.GET("/apps/:uid", h.GetApp)
		api.GET("/apps/:uid/history", h.GetAppHistory)
		api.GET("/parts/:type", h.GetPart)
		api.GET("/time", h.GetTime)
		api.GET("/traffic", h.GetTraffic)
		api.GET("/count", h.GetCount)
		api.GET("/history", h.GetHistory)

		api.POST("/events", h.PostEvent)
		api.POST("/compute", h.Compute)
		api.POST("/reset", h.Reset)
	}

	r.GET("/ws", h.HandleWebSocket)
	r.GET("/health", h.HealthCheck)
}

func (h *Handler) statsData() StatsData {
	records := h.engine.BatteryStats()
	if records == nil {
		records = []stats.Info{}
	}
	return StatsData{
		OnBattery: h.engine.OnBattery(),
		TotalMah:  h.engine.TotalPowerMah(),
		Records:   records,
	}
}

// GetStats returns the last compute pass.
func (h *Handler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.statsData()})
}

type appStats struct {
	UID      int32   `json:"uid"`
	PowerMah float64 `json:"power_mah"`
	Percent  float64 `json:"percent"`
}

func (h *Handler) appStats(uid int32) appStats {
	return appStats{
		UID:      uid,
		PowerMah: h.engine.AppStatsMah(uid),
		Percent:  h.engine.AppStatsPercent(uid),
	}
}

func (h *Handler) ListApps(c *gin.Context) {
	uids := h.engine.UIDs()
	apps := make([]appStats, 0, len(uids))
	for _, uid := range uids {
		apps = append(apps, h.appStats(uid))
	}
	c.JSON(http.StatusOK, gin.H{"data": apps})
}

func (h *Handler) GetApp(c *gin.Context) {
	uid, ok := parseUID(c, c.Param("uid"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": h.appStats(uid)})
}

func (h *Handler) GetAppHistory(c *gin.Context) {
	uid, ok := parseUID(c, c.Param("uid"))
	if !ok {
		return
	}
	from, to, ok := h.parseRange(c)
	if !ok {
		return
	}
	if h.history == nil {
		c.JSON(http.StatusOK, gin.H{"data": []collector.PowerPoint{}})
		return
	}

	points, err := h.history.AppHistory(uid, from, to)
	if err != nil {
		h.logger.Error("failed to load app history", zap.Error(err), zap.Int32("uid", uid))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load app history"})
		return
	}
	if points == nil {
		points = []collector.PowerPoint{}
	}
	c.JSON(http.StatusOK, gin.H{"data": points})
}

func (h *Handler) GetPart(c *gin.Context) {
	t, ok := stats.ParseConsumptionType(c.Param("type"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid consumption type"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"type":      t,
		"power_mah": h.engine.PartStatsMah(t),
		"percent":   h.engine.PartStatsPercent(t),
	}})
}

// GetTime answers a hardware time query, or a per-application one when
// uid is given.
func (h *Handler) GetTime(c *gin.Context) {
	cause, ok := parseCause(c)
	if !ok {
		return
	}
	level, err := strconv.ParseInt(c.DefaultQuery("level", "-1"), 10, 16)
	if err != nil || level < int64(stats.NoLevel) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid level"})
		return
	}
	uid, ok := parseUID(c, c.DefaultQuery("uid", "-1"))
	if !ok {
		return
	}

	var ms int64
	if uid == stats.NoUID {
		ms = h.engine.TotalTimeMs(cause, int16(level))
	} else {
		ms = h.engine.UIDTotalTimeMs(uid, cause, int16(level))
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"cause":   cause.String(),
		"level":   level,
		"uid":     uid,
		"time_ms": ms,
	}})
}

func (h *Handler) GetTraffic(c *gin.Context) {
	cause, ok := parseCause(c)
	if !ok {
		return
	}
	uid, ok := parseUID(c, c.DefaultQuery("uid", "-1"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"cause": cause.String(),
		"uid":   uid,
		"bytes": h.engine.TotalDataCount(cause, uid),
	}})
}

func (h *Handler) GetCount(c *gin.Context) {
	cause, ok := parseCause(c)
	if !ok {
		return
	}
	uid, ok := parseUID(c, c.DefaultQuery("uid", "-1"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"cause": cause.String(),
		"uid":   uid,
		"count": h.engine.TotalConsumptionCount(cause, uid),
	}})
}

// GetHistory returns stored compute passes, by default for the last day.
func (h *Handler) GetHistory(c *gin.Context) {
	from, to, ok := h.parseRange(c)
	if !ok {
		return
	}
	if h.history == nil {
		c.JSON(http.StatusOK, gin.H{"data": []stats.Pass{}})
		return
	}

	passes, err := h.history.PassesInRange(from, to)
	if err != nil {
		h.logger.Error("failed to load history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load history"})
		return
	}
	if passes == nil {
		passes = []stats.Pass{}
	}
	c.JSON(http.StatusOK, gin.H{"data": passes})
}

// PostEvent ingests one event in the event-spool line format.
func (h *Handler) PostEvent(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	ev, err := collector.ParseEvent(body, h.now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ev.Dispatch(h.engine)
	h.logger.Debug("event ingested",
		zap.String("cause", ev.Cause.String()),
		zap.Bool("traffic", ev.Traffic),
		zap.Int32("uid", ev.UID))
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (h *Handler) Compute(c *gin.Context) {
	var pass stats.Pass
	if h.compute != nil {
		pass = h.compute()
	} else {
		pass = h.engine.Pass(h.now())
		h.wsHub.BroadcastMessage(MsgTypeCompute, pass)
	}
	c.JSON(http.StatusOK, gin.H{"data": pass})
}

func (h *Handler) Reset(c *gin.Context) {
	h.engine.Reset()
	h.logger.Info("statistics reset via API")
	h.wsHub.BroadcastMessage(MsgTypeReset, h.statsData())
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade websocket", zap.Error(err))
		return
	}

	client := NewClient(h.wsHub, conn)
	if !client.Register() {
		conn.Close()
		return
	}

	go client.ReadPump()
	go client.WritePump()
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"on_battery": h.engine.OnBattery(),
		"ws_clients": h.wsHub.ClientCount(),
	})
}

func parseUID(c *gin.Context, raw string) (int32, bool) {
	uid, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || uid < int64(stats.NoUID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid uid"})
		return 0, false
	}
	return int32(uid), true
}

func parseCause(c *gin.Context) (stats.Cause, bool) {
	cause, ok := stats.ParseCause(c.Query("cause"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cause"})
		return stats.CauseInvalid, false
	}
	return cause, true
}

func (h *Handler) parseRange(c *gin.Context) (int64, int64, bool) {
	now := h.now()
	from, errFrom := strconv.ParseInt(c.DefaultQuery("from", strconv.FormatInt(now.Add(-defaultHistoryWindow).Unix(), 10)), 10, 64)
	to, errTo := strconv.ParseInt(c.DefaultQuery("to", strconv.FormatInt(now.Unix(), 10)), 10, 64)
	switch {
	case errFrom != nil || errTo != nil:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid time range"})
		return 0, 0, false
	case from < 0 || to < from:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid time range"})
		return 0, 0, false
	case to-from > int64(maxHistoryRange/time.Second):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Time range too large"})
		return 0, 0, false
	}
	return from, to, true
}
