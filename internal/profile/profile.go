package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// ErrUnavailable reports a profile file that could not be read or decoded.
var ErrUnavailable = errors.New("power profile unavailable")

const (
	KeyBluetoothOn       = "bluetooth_on"
	KeyBluetoothScan     = "bluetooth_scan"
	KeyBluetoothRX       = "bluetooth_rx"
	KeyBluetoothTX       = "bluetooth_tx"
	KeyWifiOn            = "wifi_on"
	KeyWifiScan          = "wifi_scan"
	KeyWifiRX            = "wifi_rx"
	KeyWifiTX            = "wifi_tx"
	KeyRadioOn           = "radio_on"
	KeyRadioScan         = "radio_scan"
	KeyRadioActive       = "radio_active"
	KeyRadioRX           = "radio_rx"
	KeyRadioTX           = "radio_tx"
	KeyCameraOn          = "camera_on"
	KeyFlashlightOn      = "flashlight_on"
	KeyGPSOn             = "gps_on"
	KeySensorGravityOn   = "sensor_gravity_on"
	KeySensorProximityOn = "sensor_proximity_on"
	KeyAudioOn           = "audio_on"
	KeyScreenOn          = "screen_on"
	KeyScreenBrightness  = "screen_brightness"
	KeyCPUAwake          = "cpu_awake"
	KeyCPUIdle           = "cpu_idle"
	KeyCPUSuspend        = "cpu_suspend"
	KeyCPUActive         = "cpu_active"
	KeyCPUClusters       = "cpu_clusters"
	KeyAlarmOn           = "alarm_on"

	speedKeyPrefix = "cpu_speed_cluster"
)

// SpeedKey names the per-frequency current table of a CPU cluster.
func SpeedKey(cluster int) string {
	return speedKeyPrefix + strconv.Itoa(cluster)
}

// Profile holds the device's average current draw per component, in mA.
// Keys map either to a single value or to a table indexed by level. A nil
// *Profile answers every lookup with 0.
type Profile struct {
	single map[string]float64
	tiered map[string][]float64
}

func New() *Profile {
	return &Profile{single: map[string]float64{}, tiered: map[string][]float64{}}
}

// FromValues builds a profile from literal tables.
func FromValues(single map[string]float64, tiered map[string][]float64) *Profile {
	p := New()
	for k, v := range single {
		p.single[k] = v
	}
	for k, v := range tiered {
		p.tiered[k] = append([]float64(nil), v...)
	}
	return p
}

// Load reads a profile document. Files ending in .toml are decoded as TOML,
// anything else as JSON.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	var raw map[string]any
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, &raw)
	} else {
		err = json.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrUnavailable, path, err)
	}
	p, err := fromRaw(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, path, err)
	}
	return p, nil
}

// Parse decodes a JSON profile document.
func Parse(data []byte) (*Profile, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	return fromRaw(raw)
}

func fromRaw(raw map[string]any) (*Profile, error) {
	if raw == nil {
		return nil, errors.New("profile document is empty")
	}
	p := New()
	for key, value := range raw {
		switch v := value.(type) {
		case []any:
			table := make([]float64, 0, len(v))
			for i, elem := range v {
				f, ok := number(elem)
				if !ok {
					return nil, fmt.Errorf("profile key %q[%d]: not a number", key, i)
				}
				table = append(table, f)
			}
			p.tiered[key] = table
		default:
			f, ok := number(v)
			if !ok {
				return nil, fmt.Errorf("profile key %q: unsupported value type %T", key, value)
			}
			p.single[key] = f
		}
	}
	return p, nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

// AverageCurrentMa returns the single-valued current for name. A tiered key
// answers with its first level.
func (p *Profile) AverageCurrentMa(name string) float64 {
	if p == nil {
		return 0
	}
	if v, ok := p.single[name]; ok {
		return v
	}
	if t := p.tiered[name]; len(t) > 0 {
		return t[0]
	}
	return 0
}

// AverageCurrentMaAt returns the current of name at level, or 0 when the
// level is out of range.
func (p *Profile) AverageCurrentMaAt(name string, level int) float64 {
	if p == nil {
		return 0
	}
	t, ok := p.tiered[name]
	if !ok {
		if level == 0 {
			return p.single[name]
		}
		return 0
	}
	if level < 0 || level >= len(t) {
		return 0
	}
	return t[level]
}

// Levels returns the length of a tiered key, or 0.
func (p *Profile) Levels(name string) int {
	if p == nil {
		return 0
	}
	return len(p.tiered[name])
}

// ClusterCount is the number of CPU clusters the profile describes.
func (p *Profile) ClusterCount() int {
	return p.Levels(KeyCPUClusters)
}

// SpeedBinCount is the number of frequency steps listed for a cluster.
func (p *Profile) SpeedBinCount(cluster int) int {
	return p.Levels(SpeedKey(cluster))
}

// Entry is a flattened profile value for display.
type Entry struct {
	Key    string
	Values []float64
}

// Entries lists every key in name order.
func (p *Profile) Entries() []Entry {
	if p == nil {
		return nil
	}
	out := make([]Entry, 0, len(p.single)+len(p.tiered))
	for k, v := range p.single {
		out = append(out, Entry{Key: k, Values: []float64{v}})
	}
	for k, v := range p.tiered {
		out = append(out, Entry{Key: k, Values: append([]float64(nil), v...)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Set stores a single-valued key, replacing any table under the same name.
func (p *Profile) Set(key string, ma float64) {
	delete(p.tiered, key)
	p.single[key] = ma
}

// Save writes the profile as JSON, replacing path atomically.
func (p *Profile) Save(path string) error {
	doc := make(map[string]any, len(p.single)+len(p.tiered))
	for k, v := range p.single {
		doc[k] = v
	}
	for k, v := range p.tiered {
		doc[k] = v
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create profile directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".profile-*.json")
	if err != nil {
		return fmt.Errorf("create temp profile: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmpPath != "" {
			_ = os.Remove(tmpPath)
		}
	}()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp profile: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp profile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp profile: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace profile: %w", err)
	}
	tmpPath = ""
	return nil
}
