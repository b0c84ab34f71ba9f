package collector

import (
	"log/slog"

	"github.com/godbus/dbus/v5"
)

const (
	loginManager        = "org.freedesktop.login1.Manager"
	signalSleep         = loginManager + ".PrepareForSleep"
	signalShutdown      = loginManager + ".PrepareForShutdown"
	sleepSignalBuffered = 16
)

// SleepMonitor listens for systemd-logind PrepareForSleep and
// PrepareForShutdown signals. The daemon turns a sleep into a display-off
// event, re-polls its sources on wake and saves the engine on shutdown.
type SleepMonitor struct {
	conn     *dbus.Conn
	done     chan struct{}
	sleep    chan struct{}
	wake     chan struct{}
	shutdown chan struct{}
	log      *slog.Logger
}

// NewSleepMonitor creates a new sleep monitor connected to the system bus.
func NewSleepMonitor(logger *slog.Logger) (*SleepMonitor, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}

	for _, member := range []string{"PrepareForSleep", "PrepareForShutdown"} {
		err = conn.AddMatchSignal(
			dbus.WithMatchInterface(loginManager),
			dbus.WithMatchMember(member),
		)
		if err != nil {
			return nil, err
		}
	}

	m := newSleepMonitor(conn, logger)
	ch := make(chan *dbus.Signal, sleepSignalBuffered)
	conn.Signal(ch)
	go func() {
		defer conn.RemoveSignal(ch)
		m.listen(ch)
	}()
	return m, nil
}

func newSleepMonitor(conn *dbus.Conn, logger *slog.Logger) *SleepMonitor {
	return &SleepMonitor{
		conn:     conn,
		done:     make(chan struct{}),
		sleep:    make(chan struct{}, 1),
		wake:     make(chan struct{}, 1),
		shutdown: make(chan struct{}, 1),
		log:      logger,
	}
}

// Sleep receives a value each time the system is about to sleep.
func (m *SleepMonitor) Sleep() <-chan struct{} {
	return m.sleep
}

// Wake receives a value each time the system wakes from sleep.
func (m *SleepMonitor) Wake() <-chan struct{} {
	return m.wake
}

// Shutdown receives a value when the system prepares to power off.
func (m *SleepMonitor) Shutdown() <-chan struct{} {
	return m.shutdown
}

// Close stops the monitor.
func (m *SleepMonitor) Close() {
	close(m.done)
}

func (m *SleepMonitor) listen(ch <-chan *dbus.Signal) {
	for {
		select {
		case sig, ok := <-ch:
			if !ok {
				return
			}
			m.handle(sig)
		case <-m.done:
			return
		}
	}
}

func (m *SleepMonitor) handle(sig *dbus.Signal) {
	if sig == nil || len(sig.Body) < 1 {
		return
	}
	active, ok := sig.Body[0].(bool)
	if !ok {
		return
	}

	switch sig.Name {
	case signalShutdown:
		if active {
			m.log.Info("system preparing for shutdown")
			notify(m.shutdown)
		}
	case signalSleep:
		if active {
			m.log.Info("system going to sleep")
			notify(m.sleep)
		} else {
			m.log.Info("system woke up")
			notify(m.wake)
		}
	}
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
