package entity

import (
	"sort"

	"github.com/cptspacemanspiff/battery-stats/internal/stats"
)

// Set is the full family of entities for one engine.
type Set struct {
	UID  *UIDEntity
	User *UserEntity
	CPU  *CPUEntity

	Bluetooth  Entity
	Wifi       Entity
	Radio      Entity
	Screen     Entity
	Phone      Entity
	Idle       Entity
	Camera     Entity
	Flashlight Entity
	Audio      Entity
	Sensor     Entity
	GPS        Entity
	Wakelock   Entity
	Alarm      Entity

	byType  map[stats.ConsumptionType]Entity
	byCause map[stats.Cause]Entity
}

// NewSet builds and wires every entity. cpu may be nil.
func NewSet(env *Env, cpu CPUTimeReader, userOf UserResolver) *Set {
	s := &Set{
		User:       newUser(env),
		CPU:        newCPU(env, cpu),
		Bluetooth:  newBluetooth(env),
		Wifi:       newWifi(env),
		Radio:      newRadio(env),
		Screen:     newScreen(env),
		Phone:      newPhone(env),
		Idle:       newIdle(env),
		Camera:     newCamera(env),
		Flashlight: newFlashlight(env),
		Audio:      newAudio(env),
		Sensor:     newSensor(env),
		GPS:        newGPS(env),
		Wakelock:   newWakelock(env),
		Alarm:      newAlarm(env),
	}
	s.UID = newUID(env, s.User, userOf, s.ForCause,
		s.Bluetooth, s.Radio, s.Wifi, s.Camera, s.Flashlight, s.Audio,
		s.Sensor, s.GPS, s.CPU, s.Wakelock, s.Alarm)

	s.byType = map[stats.ConsumptionType]Entity{}
	for _, e := range []Entity{
		s.UID, s.User, s.CPU, s.Bluetooth, s.Wifi, s.Radio, s.Screen, s.Phone,
		s.Idle, s.Camera, s.Flashlight, s.Audio, s.Sensor, s.GPS, s.Wakelock, s.Alarm,
	} {
		s.byType[e.Type()] = e
	}

	s.byCause = map[stats.Cause]Entity{
		stats.CauseBluetoothOn:       s.Bluetooth,
		stats.CauseBluetoothScan:     s.Bluetooth,
		stats.CauseBluetoothRX:       s.Bluetooth,
		stats.CauseBluetoothTX:       s.Bluetooth,
		stats.CauseWifiOn:            s.Wifi,
		stats.CauseWifiScan:          s.Wifi,
		stats.CauseWifiRX:            s.Wifi,
		stats.CauseWifiTX:            s.Wifi,
		stats.CauseRadioOn:           s.Radio,
		stats.CauseRadioScan:         s.Radio,
		stats.CauseRadioRX:           s.Radio,
		stats.CauseRadioTX:           s.Radio,
		stats.CausePhoneActive:       s.Phone,
		stats.CauseCameraOn:          s.Camera,
		stats.CauseFlashlightOn:      s.Flashlight,
		stats.CauseGPSOn:             s.GPS,
		stats.CauseSensorGravityOn:   s.Sensor,
		stats.CauseSensorProximityOn: s.Sensor,
		stats.CauseAudioOn:           s.Audio,
		stats.CauseScreenOn:          s.Screen,
		stats.CauseScreenBrightness:  s.Screen,
		stats.CauseWakelockHold:      s.Wakelock,
		stats.CausePhoneIdle:         s.Idle,
		stats.CauseCPUSuspend:        s.Idle,
		stats.CauseCPUCluster:        s.CPU,
		stats.CauseCPUSpeed:          s.CPU,
		stats.CauseCPUActive:         s.CPU,
		stats.CauseAlarm:             s.Alarm,
	}
	return s
}

// Get returns the entity of a consumption type, or nil.
func (s *Set) Get(t stats.ConsumptionType) Entity {
	return s.byType[t]
}

// ForCause returns the entity that owns cause, or nil.
func (s *Set) ForCause(c stats.Cause) Entity {
	return s.byCause[c]
}

// ComputeOrder lists the entities a compute pass runs. Applications go
// first so connectivity records can include their share, and users go last
// so they see every application.
func (s *Set) ComputeOrder() []Entity {
	return []Entity{s.UID, s.Bluetooth, s.Idle, s.Phone, s.Radio, s.Screen, s.Wifi, s.User}
}

// All returns every entity ordered by consumption type.
func (s *Set) All() []Entity {
	out := make([]Entity, 0, len(s.byType))
	for _, e := range s.byType {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type() < out[j].Type() })
	return out
}
