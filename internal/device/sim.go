package device

import (
	"context"
	"sync"
	"time"
)

// SimulatedDirectory is an in-memory Directory used in development and
// tests. Discovery replays a fixed device list on a short cadence; power
// and disconnect events are injected by the caller.
type SimulatedDirectory struct {
	mu          sync.Mutex
	available   bool
	powered     bool
	devices     []Descriptor
	power       chan bool
	disconnects chan string
	connectErr  error
}

func NewSimulatedDirectory(devices []Descriptor) *SimulatedDirectory {
	return &SimulatedDirectory{
		available:   true,
		powered:     true,
		devices:     devices,
		power:       make(chan bool, 8),
		disconnects: make(chan string, 8),
	}
}

func (d *SimulatedDirectory) SetAvailable(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.available = v
}

func (d *SimulatedDirectory) SetPowered(v bool) {
	d.mu.Lock()
	d.powered = v
	d.mu.Unlock()
	d.power <- v
}

func (d *SimulatedDirectory) SetConnectErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connectErr = err
}

// DropConnection injects an unsolicited disconnect notification.
func (d *SimulatedDirectory) DropConnection(id string) {
	d.disconnects <- id
}

func (d *SimulatedDirectory) Available(context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.available, nil
}

func (d *SimulatedDirectory) Powered(context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.powered, nil
}

func (d *SimulatedDirectory) PowerEvents() <-chan bool {
	return d.power
}

func (d *SimulatedDirectory) Scan(ctx context.Context, found func(Descriptor)) error {
	d.mu.Lock()
	devices := append([]Descriptor(nil), d.devices...)
	d.mu.Unlock()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	i := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if len(devices) == 0 {
				continue
			}
			found(devices[i%len(devices)])
			i++
		}
	}
}

func (d *SimulatedDirectory) Connect(ctx context.Context, _ string) error {
	d.mu.Lock()
	err := d.connectErr
	d.mu.Unlock()
	if err != nil {
		return err
	}
	return ctx.Err()
}

func (d *SimulatedDirectory) Disconnect(context.Context, string) error {
	return nil
}

func (d *SimulatedDirectory) Disconnects() <-chan string {
	return d.disconnects
}
