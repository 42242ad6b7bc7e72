package drone

import "fmt"

const (
	StateConnected    = "Connected"
	StateDisconnected = "Disconnected"

	// MaxMissedHeartbeats is the number of consecutive empty receives after
	// which the link counts as lost.
	MaxMissedHeartbeats = 5
)

// HeartbeatSender sends heartbeats to the device
type HeartbeatSender struct {
	device Device
}

// NewHeartbeatSender creates a HeartbeatSender
func NewHeartbeatSender(device Device) (*HeartbeatSender, error) {
	if device == nil {
		return nil, fmt.Errorf("heartbeat sender: device is required")
	}
	return &HeartbeatSender{device: device}, nil
}

// Run sends one heartbeat
func (s *HeartbeatSender) Run() error {
	return s.device.SendHeartbeat()
}

// HeartbeatReceiver tracks whether the device is still sending heartbeats.
type HeartbeatReceiver struct {
	device Device
	missed int
	state  string
}

// NewHeartbeatReceiver creates a receiver in the connected state
func NewHeartbeatReceiver(device Device) (*HeartbeatReceiver, error) {
	if device == nil {
		return nil, fmt.Errorf("heartbeat receiver: device is required")
	}
	return &HeartbeatReceiver{device: device, state: StateConnected}, nil
}

// Run makes one non-blocking receive attempt and returns the link state.
func (r *HeartbeatReceiver) Run() string {
	if _, ok := r.device.Recv(MsgHeartbeat); ok {
		r.missed = 0
		r.state = StateConnected
		return r.state
	}
	r.missed++
	if r.missed >= MaxMissedHeartbeats {
		r.state = StateDisconnected
	}
	return r.state
}

// State returns the last computed link state
func (r *HeartbeatReceiver) State() string {
	return r.state
}

// Missed returns the number of consecutive missed heartbeats
func (r *HeartbeatReceiver) Missed() int {
	return r.missed
}
