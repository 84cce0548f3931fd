package device

import "context"

// Descriptor is one discovered device as reported by the directory.
type Descriptor struct {
	ID   string
	Name string
}

// Directory is the opaque capability over the external audio-source
// stack. The production implementation sits on the platform Bluetooth
// daemon; tests and development use the simulated directory.
type Directory interface {
	// Available reports whether the capability exists at all. Queried
	// once per process.
	Available(ctx context.Context) (bool, error)

	// Powered reports whether the adapter is currently enabled.
	Powered(ctx context.Context) (bool, error)

	// PowerEvents streams adapter enabled/disabled signals for the
	// process lifetime.
	PowerEvents() <-chan bool

	// Scan discovers devices until ctx is done, invoking found for each
	// discovery event. Duplicate and anonymous reports are passed
	// through; the session filters them.
	Scan(ctx context.Context, found func(Descriptor)) error

	// Connect establishes a connection to the device with the given id.
	Connect(ctx context.Context, id string) error

	// Disconnect tears down the connection to the device with the given id.
	Disconnect(ctx context.Context, id string) error

	// Disconnects streams unsolicited disconnect notifications by
	// device id.
	Disconnects() <-chan string
}
