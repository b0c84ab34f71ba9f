// Package snapshot persists the result of a compute pass together with the
// timer totals behind it.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cptspacemanspiff/battery-stats/internal/stats"
)

// ErrNotFound is returned by Load when no snapshot has been saved yet.
var ErrNotFound = errors.New("snapshot not found")

// Document is the on-disk layout. Power is keyed by the decimal uid for
// applications and by the decimal consumption type for hardware parts.
type Document struct {
	Total    *float64            `json:"Total,omitempty"`
	Power    map[string]float64  `json:"Power"`
	Hardware Hardware            `json:"Hardware"`
	Software map[string]Software `json:"Software"`
}

// Hardware holds the hardware timer totals, in ms.
type Hardware struct {
	BluetoothOn      int64                             `json:"bluetooth_on"`
	ScreenOn         int64                             `json:"screen_on"`
	ScreenBrightness [stats.ScreenBrightnessBins]int64 `json:"screen_brightness"`
	WifiOn           int64                             `json:"wifi_on"`
	CPUIdle          int64                             `json:"cpu_idle"`
	RadioActive      int64                             `json:"radio_active"`
	RadioScan        int64                             `json:"radio_scan"`
	RadioOn          [stats.RadioSignalBins]int64      `json:"radio_on"`
}

// Software holds the per-application totals, in ms unless noted.
type Software struct {
	CameraOn          int64        `json:"camera_on"`
	FlashlightOn      int64        `json:"flashlight_on"`
	GPSOn             int64        `json:"gps_on"`
	SensorGravityOn   int64        `json:"sensor_gravity_on"`
	SensorProximityOn int64        `json:"sensor_proximity_on"`
	AudioOn           int64        `json:"audio_on"`
	WakelockHold      int64        `json:"wakelock_hold"`
	CPUTime           int64        `json:"cpu_time"`
	Connectivity      Connectivity `json:"Connectivity"`
}

// Connectivity holds per-application scan and traffic figures. Byte fields
// are RX plus TX.
type Connectivity struct {
	BluetoothScan  int64 `json:"bluetooth_scan"`
	BluetoothRX    int64 `json:"bluetooth_rx"`
	BluetoothTX    int64 `json:"bluetooth_tx"`
	BluetoothBytes int64 `json:"bluetooth_bytes"`
	WifiScan       int64 `json:"wifi_scan"`
	WifiRX         int64 `json:"wifi_rx"`
	WifiTX         int64 `json:"wifi_tx"`
	WifiBytes      int64 `json:"wifi_bytes"`
	RadioRX        int64 `json:"radio_rx"`
	RadioTX        int64 `json:"radio_tx"`
	RadioBytes     int64 `json:"radio_bytes"`
}

func NewDocument() *Document {
	return &Document{
		Power:    map[string]float64{},
		Software: map[string]Software{},
	}
}

// TotalMah returns the stored total, or rebuilds it from the power section
// for documents written without one.
func (d *Document) TotalMah() float64 {
	if d.Total != nil {
		return *d.Total
	}
	var total float64
	for _, p := range d.Power {
		total += p
	}
	return total
}

func (d *Document) SetTotal(mah float64) {
	d.Total = &mah
}

// Store reads and writes a snapshot file.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: strings.TrimSpace(path)}
}

func (s *Store) Path() string {
	return s.path
}

// Load reads the snapshot. A missing file yields ErrNotFound.
func (s *Store) Load() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	doc := NewDocument()
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", s.path, err)
	}
	if doc.Power == nil {
		doc.Power = map[string]float64{}
	}
	if doc.Software == nil {
		doc.Software = map[string]Software{}
	}
	return doc, nil
}

// Save replaces the snapshot atomically.
func (s *Store) Save(doc *Document) error {
	if s.path == "" {
		return fmt.Errorf("snapshot path must not be empty")
	}
	if doc == nil {
		return fmt.Errorf("snapshot document must not be nil")
	}

	var data bytes.Buffer
	enc := json.NewEncoder(&data)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".snapshot-*.json")
	if err != nil {
		return fmt.Errorf("create temp snapshot file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		if tmpPath != "" {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data.Bytes()); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("write temp snapshot file: %w", err)
	}
	if err := tmpFile.Chmod(0o644); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("chmod temp snapshot file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp snapshot file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replace snapshot file: %w", err)
	}
	tmpPath = ""

	return nil
}
