package entity

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cptspacemanspiff/battery-stats/internal/profile"
	"github.com/cptspacemanspiff/battery-stats/internal/stats"
)

const hour = stats.MsInHour

func testProfile() *profile.Profile {
	return profile.FromValues(map[string]float64{
		profile.KeyBluetoothOn:       10,
		profile.KeyBluetoothScan:     20,
		profile.KeyBluetoothRX:       30,
		profile.KeyBluetoothTX:       40,
		profile.KeyWifiOn:            3,
		profile.KeyWifiScan:          0.5,
		profile.KeyWifiRX:            100,
		profile.KeyWifiTX:            200,
		profile.KeyRadioScan:         60,
		profile.KeyRadioActive:       250,
		profile.KeyRadioRX:           90,
		profile.KeyRadioTX:           180,
		profile.KeyCameraOn:          500,
		profile.KeyFlashlightOn:      150,
		profile.KeyGPSOn:             70,
		profile.KeySensorGravityOn:   4,
		profile.KeySensorProximityOn: 6,
		profile.KeyAudioOn:           35,
		profile.KeyScreenOn:          100,
		profile.KeyScreenBrightness:  20,
		profile.KeyCPUAwake:          50,
		profile.KeyCPUIdle:           10,
		profile.KeyCPUSuspend:        2,
		profile.KeyCPUActive:         100,
		profile.KeyAlarmOn:           0.25,
	}, map[string][]float64{
		profile.KeyRadioOn:     {200, 150, 100, 80, 60},
		profile.KeyCPUClusters: {40, 80},
		profile.SpeedKey(0):    {10, 20},
		profile.SpeedKey(1):    {30, 60, 90},
	})
}

type fixture struct {
	src    *stats.ManualTime
	env    *Env
	set    *Set
	reader *fakeReader
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	src := &stats.ManualTime{}
	clock := stats.NewBatteryClock(src)
	clock.SetOnBattery(true)
	env := &Env{
		Profile: testProfile(),
		Clock:   clock,
		Ledger:  &Ledger{},
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	reader := &fakeReader{times: map[int32]fakeCPU{}}
	return &fixture{src: src, env: env, set: NewSet(env, reader, nil), reader: reader}
}

// run starts timer, advances the clock by ms and stops it.
func (f *fixture) run(timer *stats.ActiveTimer, ms int64) {
	timer.StartRunning()
	f.src.Advance(ms)
	timer.StopRunning()
}

func (f *fixture) compute() {
	f.env.Ledger.Reset()
	for _, e := range f.set.ComputeOrder() {
		e.Calculate(stats.NoUID)
	}
}

type fakeCPU struct {
	user, system int64
	active       int64
	cluster      []int64
	speed        [][]int64
}

type fakeReader struct {
	times   map[int32]fakeCPU
	updates int
	resets  int
}

func (r *fakeReader) Update(bool) error { r.updates++; return nil }

func (r *fakeReader) UIDs() []int32 { return sortedKeys(r.times) }

func (r *fakeReader) UIDTimeMs(uid int32) []int64 {
	c := r.times[uid]
	return []int64{c.user, c.system}
}

func (r *fakeReader) ActiveTimeMs(uid int32) int64 { return r.times[uid].active }

func (r *fakeReader) ClusterTimeMs(uid int32, cluster int) int64 {
	c := r.times[uid]
	if cluster >= len(c.cluster) {
		return 0
	}
	return c.cluster[cluster]
}

func (r *fakeReader) SpeedTimeMs(uid int32, cluster, speed int) int64 {
	c := r.times[uid]
	if cluster >= len(c.speed) || speed >= len(c.speed[cluster]) {
		return 0
	}
	return c.speed[cluster][speed]
}

func (r *fakeReader) Reset() { r.resets++ }

func TestAppEntitiesChargeTimerAtProfileCurrent(t *testing.T) {
	f := newFixture(t)
	f.run(f.set.Camera.Timer(stats.CauseCameraOn, 1000, stats.NoLevel), hour)
	f.run(f.set.Sensor.Timer(stats.CauseSensorGravityOn, 1000, stats.NoLevel), hour/2)
	f.run(f.set.Sensor.Timer(stats.CauseSensorProximityOn, 1000, stats.NoLevel), hour)

	f.set.Camera.Calculate(1000)
	f.set.Sensor.Calculate(1000)

	assert.InDelta(t, 500, f.set.Camera.EntityPowerMah(1000), 1e-9)
	assert.InDelta(t, 2+6, f.set.Sensor.EntityPowerMah(1000), 1e-9)
	assert.InDelta(t, 2, f.set.Sensor.StatsPowerMah(stats.CauseSensorGravityOn, 1000), 1e-9)
	assert.EqualValues(t, hour/2, f.set.Sensor.ActiveTimeMs(stats.CauseSensorGravityOn, 1000, stats.NoLevel))
	assert.Zero(t, f.set.Camera.EntityPowerMah(2000))
}

func TestAppEntityRejectsHardwareTimer(t *testing.T) {
	f := newFixture(t)
	assert.Nil(t, f.set.Camera.Timer(stats.CauseCameraOn, stats.NoUID, stats.NoLevel))
	assert.Nil(t, f.set.Camera.Timer(stats.CauseGPSOn, 1000, stats.NoLevel))
}

func TestWakelockUsesAwakeCurrent(t *testing.T) {
	f := newFixture(t)
	f.run(f.set.Wakelock.Timer(stats.CauseWakelockHold, 10, stats.NoLevel), hour)
	f.set.Wakelock.Calculate(10)
	assert.InDelta(t, 50, f.set.Wakelock.EntityPowerMah(10), 1e-9)
}

func TestAlarmChargedPerOccurrence(t *testing.T) {
	f := newFixture(t)
	f.set.Alarm.Counter(stats.CauseAlarm, 10).AddCount(8)
	f.set.Alarm.Calculate(10)
	assert.InDelta(t, 2, f.set.Alarm.EntityPowerMah(10), 1e-9)
	assert.EqualValues(t, 8, f.set.Alarm.Count(stats.CauseAlarm, stats.NoUID))
	assert.Nil(t, f.set.Alarm.Counter(stats.CauseAlarm, stats.NoUID))
}

func TestCPUEntity(t *testing.T) {
	f := newFixture(t)
	f.reader.times[1000] = fakeCPU{
		user: 3000, system: 1000,
		active:  hour,
		cluster: []int64{hour, hour / 2},
		speed:   [][]int64{{hour, 0}, {0, 0, hour}},
	}
	uids, err := f.set.CPU.UpdateCPUTime()
	require.NoError(t, err)
	assert.Equal(t, []int32{1000}, uids)

	f.set.CPU.Calculate(1000)
	// active 100 + cluster 40 + 40 + speed 10 + 90
	assert.InDelta(t, 280, f.set.CPU.EntityPowerMah(1000), 1e-9)
	assert.InDelta(t, 80, f.set.CPU.StatsPowerMah(stats.CauseCPUCluster, 1000), 1e-9)
	assert.InDelta(t, 100, f.set.CPU.StatsPowerMah(stats.CauseCPUSpeed, 1000), 1e-9)
	assert.EqualValues(t, 4000, f.set.CPU.ActiveTimeMs(stats.CauseCPUActive, 1000, stats.NoLevel))

	f.set.CPU.Reset()
	assert.Zero(t, f.set.CPU.EntityPowerMah(1000))
	assert.Zero(t, f.set.CPU.ActiveTimeMs(stats.CauseCPUActive, 1000, stats.NoLevel))
	assert.Contains(t, f.set.CPU.timeMs, int32(1000), "reset keeps the uid")
	assert.Contains(t, f.set.CPU.power, int32(1000), "reset keeps the uid")
	assert.Equal(t, 1, f.reader.resets)
}

func TestCPUEntityWithoutReader(t *testing.T) {
	f := newFixture(t)
	cpu := newCPU(f.env, nil)
	uids, err := cpu.UpdateCPUTime()
	require.NoError(t, err)
	assert.Empty(t, uids)
	cpu.Calculate(1000)
	assert.Zero(t, cpu.EntityPowerMah(1000))
}

func TestBluetoothSplitsHardwareAndApps(t *testing.T) {
	f := newFixture(t)
	f.set.UID.Register(1000)
	f.run(f.set.Bluetooth.Timer(stats.CauseBluetoothOn, stats.NoUID, stats.NoLevel), hour)
	f.run(f.set.Bluetooth.Timer(stats.CauseBluetoothScan, 1000, stats.NoLevel), hour)
	f.set.Bluetooth.Timer(stats.CauseBluetoothRX, 1000, stats.NoLevel).AddRunningTimeMs(hour)
	f.set.Bluetooth.Counter(stats.CauseBluetoothRX, 1000).AddCount(4096)

	f.compute()

	assert.InDelta(t, 20+30, f.set.Bluetooth.EntityPowerMah(1000), 1e-9)
	assert.InDelta(t, 10+50, f.set.Bluetooth.EntityPowerMah(stats.NoUID), 1e-9)
	assert.InDelta(t, 10, f.set.Bluetooth.StatsPowerMah(stats.CauseBluetoothOn, stats.NoUID), 1e-9)
	assert.EqualValues(t, 4096, f.set.Bluetooth.Count(stats.CauseBluetoothRX, 1000))
	assert.EqualValues(t, 4096, f.set.Bluetooth.Count(stats.CauseBluetoothRX, stats.NoUID))

	rec, ok := f.env.Ledger.Part(stats.ConsumptionBluetooth)
	require.True(t, ok)
	assert.InDelta(t, 60, rec.PowerMah, 1e-9)
}

func TestWifiScansPerOccurrence(t *testing.T) {
	f := newFixture(t)
	f.set.UID.Register(1000)
	f.set.Wifi.Counter(stats.CauseWifiScan, 1000).AddCount(10)
	f.set.Wifi.Counter(stats.CauseWifiScan, stats.NoUID).AddCount(4)
	f.run(f.set.Wifi.Timer(stats.CauseWifiOn, stats.NoUID, stats.NoLevel), hour)

	f.compute()

	assert.InDelta(t, 5, f.set.Wifi.EntityPowerMah(1000), 1e-9)
	assert.InDelta(t, 3+2+5, f.set.Wifi.EntityPowerMah(stats.NoUID), 1e-9)
	assert.InDelta(t, 7, f.set.Wifi.StatsPowerMah(stats.CauseWifiScan, stats.NoUID), 1e-9)
	assert.EqualValues(t, 14, f.set.Wifi.Count(stats.CauseWifiScan, stats.NoUID))
	assert.EqualValues(t, 10, f.set.Wifi.Count(stats.CauseWifiScan, 1000))
}

func TestRadioLevels(t *testing.T) {
	f := newFixture(t)
	f.run(f.set.Radio.Timer(stats.CauseRadioOn, stats.NoUID, 0), hour)
	f.run(f.set.Radio.Timer(stats.CauseRadioOn, stats.NoUID, 4), hour)
	f.run(f.set.Radio.Timer(stats.CauseRadioScan, stats.NoUID, stats.NoLevel), hour/60)

	assert.Nil(t, f.set.Radio.Timer(stats.CauseRadioOn, stats.NoUID, stats.RadioSignalBins))

	f.compute()
	assert.InDelta(t, 200+60+1, f.set.Radio.EntityPowerMah(stats.NoUID), 1e-9)
	assert.EqualValues(t, 2*hour, f.set.Radio.ActiveTimeMs(stats.CauseRadioOn, stats.NoUID, stats.NoLevel))
	assert.EqualValues(t, hour, f.set.Radio.ActiveTimeMs(stats.CauseRadioOn, stats.NoUID, 4))
}

func TestScreenBrightnessFormula(t *testing.T) {
	f := newFixture(t)
	f.run(f.set.Screen.Timer(stats.CauseScreenBrightness, stats.NoUID, 0), hour)
	f.run(f.set.Screen.Timer(stats.CauseScreenBrightness, stats.NoUID, 3), hour)

	f.compute()
	// level 0: 100, level 3: 100 + 3*20
	assert.InDelta(t, 260, f.set.Screen.EntityPowerMah(stats.NoUID), 1e-9)
}

func TestPhoneAndIdle(t *testing.T) {
	f := newFixture(t)
	f.run(f.set.Phone.Timer(stats.CausePhoneActive, stats.NoUID, stats.NoLevel), hour)
	f.src.Suspend(hour)

	f.compute()
	assert.InDelta(t, 250, f.set.Phone.EntityPowerMah(stats.NoUID), 1e-9)
	// boot 2h * 2mA + up 1h * 10mA
	assert.InDelta(t, 14, f.set.Idle.EntityPowerMah(stats.NoUID), 1e-9)
	assert.EqualValues(t, 2*hour, f.set.Idle.ActiveTimeMs(stats.CauseCPUSuspend, stats.NoUID, stats.NoLevel))
}

func TestComputeOrderAndUserRollup(t *testing.T) {
	f := newFixture(t)
	f.set.UID.Register(1000)
	f.set.UID.Register(200100)
	f.run(f.set.Camera.Timer(stats.CauseCameraOn, 1000, stats.NoLevel), hour)
	f.run(f.set.GPS.Timer(stats.CauseGPSOn, 200100, stats.NoLevel), hour)

	f.compute()
	f.compute()

	infos := f.env.Ledger.Infos()
	var kinds []stats.ConsumptionType
	for _, info := range infos {
		kinds = append(kinds, info.Type)
	}
	assert.Equal(t, []stats.ConsumptionType{
		stats.ConsumptionApp, stats.ConsumptionApp,
		stats.ConsumptionBluetooth, stats.ConsumptionIdle, stats.ConsumptionPhone,
		stats.ConsumptionRadio, stats.ConsumptionScreen, stats.ConsumptionWifi,
		stats.ConsumptionUser, stats.ConsumptionUser,
	}, kinds)

	assert.InDelta(t, 500, f.set.User.EntityPowerMah(0), 1e-9, "users do not accumulate across passes")
	assert.InDelta(t, 70, f.set.User.EntityPowerMah(1), 1e-9)
	app, ok := f.env.Ledger.App(200100)
	require.True(t, ok)
	assert.EqualValues(t, 1, app.UserID)

	var sum float64
	for _, info := range infos {
		if info.Type != stats.ConsumptionUser {
			sum += info.PowerMah
		}
	}
	assert.InDelta(t, sum, f.env.Ledger.TotalMah(), 1e-9)
}

func TestTotalExcludesConnectivityAppShare(t *testing.T) {
	f := newFixture(t)
	f.set.UID.Register(1000)
	f.set.Wifi.Timer(stats.CauseWifiRX, 1000, stats.NoLevel).AddRunningTimeMs(hour)

	f.compute()

	// wifi rx is counted once, through the app record.
	assert.InDelta(t, 100, f.env.Ledger.TotalMah(), 1e-9)
	rec, _ := f.env.Ledger.Part(stats.ConsumptionWifi)
	assert.InDelta(t, 100, rec.PowerMah, 1e-9)
}

func TestUIDRouting(t *testing.T) {
	f := newFixture(t)
	f.set.UID.Register(1000)
	f.run(f.set.Audio.Timer(stats.CauseAudioOn, 1000, stats.NoLevel), hour)
	f.compute()
	assert.InDelta(t, 35, f.set.UID.StatsPowerMah(stats.CauseAudioOn, 1000), 1e-9)
	assert.EqualValues(t, hour, f.set.UID.ActiveTimeMs(stats.CauseAudioOn, 1000, stats.NoLevel))
	assert.Nil(t, f.set.ForCause(stats.CauseInvalid))
	assert.Equal(t, f.set.Audio, f.set.Get(stats.ConsumptionAudio))
}

func TestResetZeroesEverything(t *testing.T) {
	f := newFixture(t)
	f.set.UID.Register(1000)
	f.run(f.set.Screen.Timer(stats.CauseScreenOn, stats.NoUID, stats.NoLevel), hour)
	f.run(f.set.Camera.Timer(stats.CauseCameraOn, 1000, stats.NoLevel), hour)
	f.compute()

	for _, e := range f.set.All() {
		e.Reset()
	}
	assert.Zero(t, f.set.Screen.ActiveTimeMs(stats.CauseScreenOn, stats.NoUID, stats.NoLevel))
	assert.Zero(t, f.set.Camera.EntityPowerMah(1000))
	assert.Zero(t, f.set.UID.EntityPowerMah(1000))
	assert.Equal(t, []int32{1000}, f.set.UID.UIDs())
}

func TestDumpInfo(t *testing.T) {
	f := newFixture(t)
	f.set.UID.Register(1000)
	f.compute()
	var b strings.Builder
	for _, e := range f.set.All() {
		e.DumpInfo(&b, stats.NoUID)
	}
	out := b.String()
	assert.Contains(t, out, "uid 1000")
	assert.Contains(t, out, "screen_on")
	assert.Contains(t, out, "wifi_on")
}

func TestDefaultUserOf(t *testing.T) {
	assert.EqualValues(t, 0, DefaultUserOf(1000))
	assert.EqualValues(t, 1, DefaultUserOf(200000))
	assert.EqualValues(t, stats.NoUID, DefaultUserOf(-5))
}
