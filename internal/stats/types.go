package stats

import (
	"fmt"
	"strconv"
)

const (
	// NoUID marks an event or query that is not owned by an application.
	NoUID int32 = -1
	// NoLevel marks a cause that carries no level dimension.
	NoLevel int16 = -1

	// MsInHour converts mA·ms into mAh.
	MsInHour = 3_600_000

	ScreenBrightnessBins = 5
	RadioSignalBins      = 5
)

// Cause identifies what a timer or counter measures.
type Cause int

const (
	CauseInvalid Cause = iota - 1
	CauseBluetoothOn
	CauseBluetoothScan
	CauseBluetoothRX
	CauseBluetoothTX
	CauseWifiOn
	CauseWifiScan
	CauseWifiRX
	CauseWifiTX
	CauseRadioOn
	CauseRadioScan
	CausePhoneActive
	CauseRadioRX
	CauseRadioTX
	CauseCameraOn
	CauseFlashlightOn
	CauseGPSOn
	CauseSensorGravityOn
	CauseSensorProximityOn
	CauseAudioOn
	CauseScreenOn
	CauseScreenBrightness
	CauseWakelockHold
	CausePhoneIdle
	CauseCPUCluster
	CauseCPUSpeed
	CauseCPUActive
	CauseCPUSuspend
	CauseAlarm
)

var causeNames = map[Cause]string{
	CauseBluetoothOn:       "bluetooth_on",
	CauseBluetoothScan:     "bluetooth_scan",
	CauseBluetoothRX:       "bluetooth_rx",
	CauseBluetoothTX:       "bluetooth_tx",
	CauseWifiOn:            "wifi_on",
	CauseWifiScan:          "wifi_scan",
	CauseWifiRX:            "wifi_rx",
	CauseWifiTX:            "wifi_tx",
	CauseRadioOn:           "radio_on",
	CauseRadioScan:         "radio_scan",
	CausePhoneActive:       "phone_active",
	CauseRadioRX:           "radio_rx",
	CauseRadioTX:           "radio_tx",
	CauseCameraOn:          "camera_on",
	CauseFlashlightOn:      "flashlight_on",
	CauseGPSOn:             "gps_on",
	CauseSensorGravityOn:   "sensor_gravity_on",
	CauseSensorProximityOn: "sensor_proximity_on",
	CauseAudioOn:           "audio_on",
	CauseScreenOn:          "screen_on",
	CauseScreenBrightness:  "screen_brightness",
	CauseWakelockHold:      "wakelock_hold",
	CausePhoneIdle:         "phone_idle",
	CauseCPUCluster:        "cpu_cluster",
	CauseCPUSpeed:          "cpu_speed",
	CauseCPUActive:         "cpu_active",
	CauseCPUSuspend:        "cpu_suspend",
	CauseAlarm:             "alarm",
}

func (c Cause) String() string {
	if name, ok := causeNames[c]; ok {
		return name
	}
	return "invalid"
}

// ParseCause resolves a cause by its snake_case name.
func ParseCause(name string) (Cause, bool) {
	for c, n := range causeNames {
		if n == name {
			return c, true
		}
	}
	return CauseInvalid, false
}

// Causes returns every valid cause in numeric order.
func Causes() []Cause {
	out := make([]Cause, 0, len(causeNames))
	for c := CauseBluetoothOn; c <= CauseAlarm; c++ {
		out = append(out, c)
	}
	return out
}

// Traffic reports whether the cause is an RX/TX cause fed through elapsed
// time and byte counts rather than state transitions.
func (c Cause) Traffic() bool {
	switch c {
	case CauseBluetoothRX, CauseBluetoothTX,
		CauseWifiRX, CauseWifiTX,
		CauseRadioRX, CauseRadioTX:
		return true
	}
	return false
}

// PerOccurrence reports whether the cause is charged per event instead of
// per unit of time.
func (c Cause) PerOccurrence() bool {
	return c == CauseWifiScan || c == CauseAlarm
}

// State is the transition carried by a state event.
type State int

const (
	StateInvalid State = iota - 1
	StateActivated
	StateDeactivated
	StateDisplayOff
	StateDisplayDim
	StateDisplayOn
	StateDisplaySuspend
	StateDisplayUnknown
	StateNetworkUnknown
	StateNetworkInService
	StateNetworkNoService
	StateNetworkEmergencyOnly
	StateNetworkSearch
	StateNetworkPowerOff
)

var stateNames = map[State]string{
	StateActivated:            "activated",
	StateDeactivated:          "deactivated",
	StateDisplayOff:           "display_off",
	StateDisplayDim:           "display_dim",
	StateDisplayOn:            "display_on",
	StateDisplaySuspend:       "display_suspend",
	StateDisplayUnknown:       "display_unknown",
	StateNetworkUnknown:       "network_unknown",
	StateNetworkInService:     "network_in_service",
	StateNetworkNoService:     "network_no_service",
	StateNetworkEmergencyOnly: "network_emergency_only",
	StateNetworkSearch:        "network_search",
	StateNetworkPowerOff:      "network_power_off",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "invalid"
}

// ParseState resolves a state by its snake_case name.
func ParseState(name string) (State, bool) {
	for s, n := range stateNames {
		if n == name {
			return s, true
		}
	}
	return StateInvalid, false
}

func (s State) IsDisplay() bool {
	return s >= StateDisplayOff && s <= StateDisplayUnknown
}

func (s State) IsNetwork() bool {
	return s >= StateNetworkUnknown && s <= StateNetworkPowerOff
}

// ConsumptionType tags an entity and the records it produces. Hardware
// types are negative so they never collide with a UID in the snapshot
// power section.
type ConsumptionType int32

const (
	ConsumptionInvalid ConsumptionType = iota - 17
	ConsumptionApp
	ConsumptionBluetooth
	ConsumptionIdle
	ConsumptionPhone
	ConsumptionRadio
	ConsumptionScreen
	ConsumptionUser
	ConsumptionWifi
	ConsumptionCamera
	ConsumptionFlashlight
	ConsumptionAudio
	ConsumptionSensor
	ConsumptionGPS
	ConsumptionCPU
	ConsumptionWakelock
	ConsumptionAlarm
)

var consumptionNames = map[ConsumptionType]string{
	ConsumptionApp:        "app",
	ConsumptionBluetooth:  "bluetooth",
	ConsumptionIdle:       "idle",
	ConsumptionPhone:      "phone",
	ConsumptionRadio:      "radio",
	ConsumptionScreen:     "screen",
	ConsumptionUser:       "user",
	ConsumptionWifi:       "wifi",
	ConsumptionCamera:     "camera",
	ConsumptionFlashlight: "flashlight",
	ConsumptionAudio:      "audio",
	ConsumptionSensor:     "sensor",
	ConsumptionGPS:        "gps",
	ConsumptionCPU:        "cpu",
	ConsumptionWakelock:   "wakelock",
	ConsumptionAlarm:      "alarm",
}

func (t ConsumptionType) String() string {
	if name, ok := consumptionNames[t]; ok {
		return name
	}
	return "invalid"
}

// Valid reports whether t names an entity.
func (t ConsumptionType) Valid() bool {
	return t > ConsumptionInvalid && t <= ConsumptionAlarm
}

// ParseConsumptionType accepts either a name ("wifi") or the numeric tag ("-9").
func ParseConsumptionType(s string) (ConsumptionType, bool) {
	for t, n := range consumptionNames {
		if n == s {
			return t, true
		}
	}
	if n, err := strconv.Atoi(s); err == nil && ConsumptionType(n).Valid() {
		return ConsumptionType(n), true
	}
	return ConsumptionInvalid, false
}

func (t ConsumptionType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *ConsumptionType) UnmarshalText(b []byte) error {
	v, ok := ParseConsumptionType(string(b))
	if !ok {
		return fmt.Errorf("unknown consumption type %q", string(b))
	}
	*t = v
	return nil
}

// PluggedType is what the device is charging from.
type PluggedType int

const (
	PluggedNone PluggedType = iota
	PluggedAC
	PluggedUSB
	PluggedWireless
)

func (p PluggedType) String() string {
	switch p {
	case PluggedAC:
		return "ac"
	case PluggedUSB:
		return "usb"
	case PluggedWireless:
		return "wireless"
	}
	return "none"
}
