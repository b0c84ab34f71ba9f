package core

import (
	"errors"
	"sort"
	"strconv"

	"github.com/cptspacemanspiff/battery-stats/internal/snapshot"
	"github.com/cptspacemanspiff/battery-stats/internal/stats"
)

var errNoSnapshotStore = errors.New("no snapshot store configured")

// Snapshot runs a compute pass and renders it with the timer totals.
func (c *Core) Snapshot() *snapshot.Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Core) snapshotLocked() *snapshot.Document {
	c.computeLocked()

	doc := snapshot.NewDocument()
	doc.SetTotal(c.ledger.TotalMah())
	for _, info := range c.ledger.Infos() {
		switch info.Type {
		case stats.ConsumptionApp:
			doc.Power[strconv.Itoa(int(info.UID))] = info.PowerMah
		case stats.ConsumptionUser:
		default:
			doc.Power[strconv.Itoa(int(info.Type))] = info.PowerMah
		}
	}

	hw := &doc.Hardware
	hw.BluetoothOn = c.hwTime(stats.CauseBluetoothOn, stats.NoLevel)
	hw.ScreenOn = c.hwTime(stats.CauseScreenOn, stats.NoLevel)
	for i := range hw.ScreenBrightness {
		hw.ScreenBrightness[i] = c.hwTime(stats.CauseScreenBrightness, int16(i))
	}
	hw.WifiOn = c.hwTime(stats.CauseWifiOn, stats.NoLevel)
	hw.CPUIdle = c.hwTime(stats.CausePhoneIdle, stats.NoLevel)
	hw.RadioActive = c.hwTime(stats.CausePhoneActive, stats.NoLevel)
	hw.RadioScan = c.hwTime(stats.CauseRadioScan, stats.NoLevel)
	for i := range hw.RadioOn {
		hw.RadioOn[i] = c.hwTime(stats.CauseRadioOn, int16(i))
	}

	for _, uid := range c.set.UID.UIDs() {
		doc.Software[strconv.Itoa(int(uid))] = c.softwareLocked(uid)
	}
	return doc
}

func (c *Core) hwTime(cause stats.Cause, level int16) int64 {
	return c.set.ForCause(cause).ActiveTimeMs(cause, stats.NoUID, level)
}

func (c *Core) softwareLocked(uid int32) snapshot.Software {
	t := func(cause stats.Cause) int64 {
		return c.set.UID.ActiveTimeMs(cause, uid, stats.NoLevel)
	}
	n := func(cause stats.Cause) int64 {
		return c.set.UID.Count(cause, uid)
	}
	return snapshot.Software{
		CameraOn:          t(stats.CauseCameraOn),
		FlashlightOn:      t(stats.CauseFlashlightOn),
		GPSOn:             t(stats.CauseGPSOn),
		SensorGravityOn:   t(stats.CauseSensorGravityOn),
		SensorProximityOn: t(stats.CauseSensorProximityOn),
		AudioOn:           t(stats.CauseAudioOn),
		WakelockHold:      t(stats.CauseWakelockHold),
		CPUTime:           t(stats.CauseCPUActive),
		Connectivity: snapshot.Connectivity{
			BluetoothScan:  t(stats.CauseBluetoothScan),
			BluetoothRX:    t(stats.CauseBluetoothRX),
			BluetoothTX:    t(stats.CauseBluetoothTX),
			BluetoothBytes: n(stats.CauseBluetoothRX) + n(stats.CauseBluetoothTX),
			WifiScan:       n(stats.CauseWifiScan),
			WifiRX:         t(stats.CauseWifiRX),
			WifiTX:         t(stats.CauseWifiTX),
			WifiBytes:      n(stats.CauseWifiRX) + n(stats.CauseWifiTX),
			RadioRX:        t(stats.CauseRadioRX),
			RadioTX:        t(stats.CauseRadioTX),
			RadioBytes:     n(stats.CauseRadioRX) + n(stats.CauseRadioTX),
		},
	}
}

// SaveSnapshot computes and writes the snapshot.
func (c *Core) SaveSnapshot() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.opts.Snapshots == nil {
		return errNoSnapshotStore
	}
	return c.opts.Snapshots.Save(c.snapshotLocked())
}

// LoadSnapshot replaces the ledger with the saved pass. Timers are not
// restored; the next compute pass starts from the live timers again.
func (c *Core) LoadSnapshot() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadSnapshotLocked()
}

func (c *Core) loadSnapshotLocked() error {
	if c.opts.Snapshots == nil {
		return errNoSnapshotStore
	}
	doc, err := c.opts.Snapshots.Load()
	if err != nil {
		return err
	}
	c.restoreLocked(doc)
	return nil
}

// Restore rebuilds the ledger from a document.
func (c *Core) Restore(doc *snapshot.Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.restoreLocked(doc)
}

func (c *Core) restoreLocked(doc *snapshot.Document) {
	var apps, parts []stats.Info
	users := map[int32]float64{}
	for key, power := range doc.Power {
		id, err := strconv.Atoi(key)
		if err != nil {
			c.logger.Warn("skipping snapshot power entry with non-numeric key", "key", key)
			continue
		}
		switch {
		case id > int(stats.NoUID):
			uid := int32(id)
			userID := c.set.UID.UserOf(uid)
			apps = append(apps, stats.Info{Type: stats.ConsumptionApp, UID: uid, UserID: userID, PowerMah: power})
			users[userID] += power
		case stats.ConsumptionType(id).Valid() && stats.ConsumptionType(id) != stats.ConsumptionApp:
			parts = append(parts, stats.Info{Type: stats.ConsumptionType(id), UID: stats.NoUID, UserID: stats.NoUID, PowerMah: power})
		default:
			c.logger.Warn("skipping snapshot power entry with unknown key", "key", key)
		}
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].UID < apps[j].UID })
	sort.Slice(parts, func(i, j int) bool { return parts[i].Type < parts[j].Type })

	infos := append(apps, parts...)
	userIDs := make([]int32, 0, len(users))
	for id := range users {
		userIDs = append(userIDs, id)
	}
	sort.Slice(userIDs, func(i, j int) bool { return userIDs[i] < userIDs[j] })
	for _, id := range userIDs {
		infos = append(infos, stats.Info{Type: stats.ConsumptionUser, UID: stats.NoUID, UserID: id, PowerMah: users[id]})
	}

	total := 0.0
	if doc.Total != nil {
		total = *doc.Total
	} else {
		for _, info := range apps {
			total += info.PowerMah
		}
		for _, info := range parts {
			total += info.PowerMah
		}
	}

	c.ledger.Restore(total, infos)
	c.logger.Info("restored snapshot", "records", len(infos), "total_mah", total)
}
