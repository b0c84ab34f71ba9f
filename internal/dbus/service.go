package dbus

import (
	"encoding/json"
	"fmt"

	godbus "github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/cptspacemanspiff/battery-stats/internal/stats"
)

const (
	busName   = "org.batterystats.Engine"
	objPath   = "/org/batterystats/Engine"
	ifaceName = "org.batterystats.Engine"

	errInvalidArgs = "org.freedesktop.DBus.Error.InvalidArgs"

	maxHistoryRangeSeconds = 86400 * 365
)

const introspectXML = `
<node>
  <interface name="` + ifaceName + `">
    <method name="UpdateState">
      <arg direction="in" type="s" name="cause"/>
      <arg direction="in" type="s" name="state"/>
      <arg direction="in" type="i" name="level"/>
      <arg direction="in" type="i" name="uid"/>
    </method>
    <method name="UpdateTraffic">
      <arg direction="in" type="s" name="cause"/>
      <arg direction="in" type="x" name="elapsed_ms"/>
      <arg direction="in" type="x" name="count"/>
      <arg direction="in" type="i" name="uid"/>
    </method>
    <method name="SetOnBattery">
      <arg direction="in" type="b" name="on_battery"/>
    </method>
    <method name="ComputePower"/>
    <method name="Reset"/>
    <method name="GetAppStatsMah">
      <arg direction="in" type="i" name="uid"/>
      <arg direction="out" type="d" name="mah"/>
    </method>
    <method name="GetAppStatsPercent">
      <arg direction="in" type="i" name="uid"/>
      <arg direction="out" type="d" name="percent"/>
    </method>
    <method name="GetPartStatsMah">
      <arg direction="in" type="s" name="type"/>
      <arg direction="out" type="d" name="mah"/>
    </method>
    <method name="GetPartStatsPercent">
      <arg direction="in" type="s" name="type"/>
      <arg direction="out" type="d" name="percent"/>
    </method>
    <method name="GetTotalTimeMs">
      <arg direction="in" type="s" name="cause"/>
      <arg direction="in" type="i" name="level"/>
      <arg direction="in" type="i" name="uid"/>
      <arg direction="out" type="x" name="ms"/>
    </method>
    <method name="GetTotalDataCount">
      <arg direction="in" type="s" name="cause"/>
      <arg direction="in" type="i" name="uid"/>
      <arg direction="out" type="x" name="bytes"/>
    </method>
    <method name="GetTotalConsumptionCount">
      <arg direction="in" type="s" name="cause"/>
      <arg direction="in" type="i" name="uid"/>
      <arg direction="out" type="x" name="count"/>
    </method>
    <method name="GetBatteryStats">
      <arg direction="out" type="s" name="json"/>
    </method>
    <method name="GetHistory">
      <arg direction="in" type="x" name="from_epoch"/>
      <arg direction="in" type="x" name="to_epoch"/>
      <arg direction="out" type="s" name="json"/>
    </method>
    <method name="Dump">
      <arg direction="out" type="s" name="text"/>
    </method>
  </interface>
` + introspect.IntrospectDataString + `
</node>`

// Engine is the accounting surface the service exposes.
type Engine interface {
	UpdateState(cause stats.Cause, state stats.State, level int16, uid int32)
	UpdateTraffic(cause stats.Cause, elapsedMs, count int64, uid int32)
	SetOnBattery(on bool)
	ComputePower()
	Reset()
	AppStatsMah(uid int32) float64
	AppStatsPercent(uid int32) float64
	PartStatsMah(t stats.ConsumptionType) float64
	PartStatsPercent(t stats.ConsumptionType) float64
	TotalTimeMs(cause stats.Cause, level int16) int64
	UIDTotalTimeMs(uid int32, cause stats.Cause, level int16) int64
	TotalDataCount(cause stats.Cause, uid int32) int64
	TotalConsumptionCount(cause stats.Cause, uid int32) int64
	BatteryStats() []stats.Info
	Dump() string
}

// History answers compute-pass range queries.
type History interface {
	PassesInRange(from, to int64) ([]stats.Pass, error)
}

// Service exposes the accounting engine over D-Bus.
type Service struct {
	engine  Engine
	history History
}

// NewService creates a new D-Bus service. history may be nil.
func NewService(engine Engine, history History) *Service {
	return &Service{engine: engine, history: history}
}

// Export registers the service on the session bus.
func (s *Service) Export() (*godbus.Conn, error) {
	conn, err := godbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}

	conn.Export(s, objPath, ifaceName)
	conn.Export(introspect.Introspectable(introspectXML), objPath, "org.freedesktop.DBus.Introspectable")

	reply, err := conn.RequestName(busName, godbus.NameFlagDoNotQueue)
	if err != nil {
		return nil, fmt.Errorf("request name: %w", err)
	}
	if reply != godbus.RequestNameReplyPrimaryOwner {
		return nil, fmt.Errorf("name %s already taken", busName)
	}

	return conn, nil
}

func invalidArgs(format string, args ...any) *godbus.Error {
	return godbus.NewError(errInvalidArgs, []interface{}{fmt.Sprintf(format, args...)})
}

func parseCause(name string) (stats.Cause, *godbus.Error) {
	cause, ok := stats.ParseCause(name)
	if !ok {
		return stats.CauseInvalid, invalidArgs("unknown cause %q", name)
	}
	return cause, nil
}

func parseType(name string) (stats.ConsumptionType, *godbus.Error) {
	t, ok := stats.ParseConsumptionType(name)
	if !ok {
		return stats.ConsumptionInvalid, invalidArgs("unknown consumption type %q", name)
	}
	return t, nil
}

func parseLevel(level int32) (int16, *godbus.Error) {
	if level < -1 || level > 32767 {
		return 0, invalidArgs("level %d out of range", level)
	}
	return int16(level), nil
}

// UpdateState forwards a state transition to the engine.
func (s *Service) UpdateState(cause, state string, level, uid int32) *godbus.Error {
	c, derr := parseCause(cause)
	if derr != nil {
		return derr
	}
	st, ok := stats.ParseState(state)
	if !ok {
		return invalidArgs("unknown state %q", state)
	}
	lvl, derr := parseLevel(level)
	if derr != nil {
		return derr
	}
	s.engine.UpdateState(c, st, lvl, uid)
	return nil
}

// UpdateTraffic forwards a traffic or count update to the engine.
func (s *Service) UpdateTraffic(cause string, elapsedMs, count int64, uid int32) *godbus.Error {
	c, derr := parseCause(cause)
	if derr != nil {
		return derr
	}
	s.engine.UpdateTraffic(c, elapsedMs, count, uid)
	return nil
}

func (s *Service) SetOnBattery(on bool) *godbus.Error {
	s.engine.SetOnBattery(on)
	return nil
}

func (s *Service) ComputePower() *godbus.Error {
	s.engine.ComputePower()
	return nil
}

func (s *Service) Reset() *godbus.Error {
	s.engine.Reset()
	return nil
}

func (s *Service) GetAppStatsMah(uid int32) (float64, *godbus.Error) {
	return s.engine.AppStatsMah(uid), nil
}

func (s *Service) GetAppStatsPercent(uid int32) (float64, *godbus.Error) {
	return s.engine.AppStatsPercent(uid), nil
}

func (s *Service) GetPartStatsMah(kind string) (float64, *godbus.Error) {
	t, derr := parseType(kind)
	if derr != nil {
		return 0, derr
	}
	return s.engine.PartStatsMah(t), nil
}

func (s *Service) GetPartStatsPercent(kind string) (float64, *godbus.Error) {
	t, derr := parseType(kind)
	if derr != nil {
		return 0, derr
	}
	return s.engine.PartStatsPercent(t), nil
}

// GetTotalTimeMs answers a hardware time query when uid is -1 and a
// per-application query otherwise.
func (s *Service) GetTotalTimeMs(cause string, level, uid int32) (int64, *godbus.Error) {
	c, derr := parseCause(cause)
	if derr != nil {
		return 0, derr
	}
	lvl, derr := parseLevel(level)
	if derr != nil {
		return 0, derr
	}
	if uid == stats.NoUID {
		return s.engine.TotalTimeMs(c, lvl), nil
	}
	return s.engine.UIDTotalTimeMs(uid, c, lvl), nil
}

func (s *Service) GetTotalDataCount(cause string, uid int32) (int64, *godbus.Error) {
	c, derr := parseCause(cause)
	if derr != nil {
		return 0, derr
	}
	return s.engine.TotalDataCount(c, uid), nil
}

func (s *Service) GetTotalConsumptionCount(cause string, uid int32) (int64, *godbus.Error) {
	c, derr := parseCause(cause)
	if derr != nil {
		return 0, derr
	}
	return s.engine.TotalConsumptionCount(c, uid), nil
}

// GetBatteryStats returns the records of the last compute pass as JSON.
func (s *Service) GetBatteryStats() (string, *godbus.Error) {
	infos := s.engine.BatteryStats()
	if infos == nil {
		infos = []stats.Info{}
	}
	data, err := json.Marshal(infos)
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	return string(data), nil
}

// GetHistory returns stored compute passes in a time range as JSON.
func (s *Service) GetHistory(fromEpoch, toEpoch int64) (string, *godbus.Error) {
	if derr := validateRange(fromEpoch, toEpoch); derr != nil {
		return "", derr
	}
	if s.history == nil {
		return "[]", nil
	}
	passes, err := s.history.PassesInRange(fromEpoch, toEpoch)
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	if passes == nil {
		passes = []stats.Pass{}
	}
	data, err := json.Marshal(passes)
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	return string(data), nil
}

func (s *Service) Dump() (string, *godbus.Error) {
	return s.engine.Dump(), nil
}

func validateRange(from, to int64) *godbus.Error {
	switch {
	case from < 0:
		return invalidArgs("from_epoch must not be negative, got %d", from)
	case to < from:
		return invalidArgs("to_epoch %d is before from_epoch %d", to, from)
	case to-from > maxHistoryRangeSeconds:
		return invalidArgs("range of %d seconds exceeds %d", to-from, maxHistoryRangeSeconds)
	}
	return nil
}
