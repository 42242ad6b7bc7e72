package drone

import (
	"errors"
	"math"
	"sync"
	"time"
)

// MessageType names a message the device emits
type MessageType string

const (
	MsgAny       MessageType = ""
	MsgHeartbeat MessageType = "HEARTBEAT"
	MsgPosition  MessageType = "LOCAL_POSITION_NED"
	MsgAttitude  MessageType = "ATTITUDE"
)

// PositionNED is a local position and velocity reading.
type PositionNED struct {
	TimeBootMs uint32
	X, Y, Z    float64 // m
	VX, VY, VZ float64 // m/s
}

// AttitudeReading is an orientation reading.
type AttitudeReading struct {
	TimeBootMs uint32
	Roll       float64 // rad
	Pitch      float64
	Yaw        float64
	RollSpeed  float64 // rad/s
	PitchSpeed float64
	YawSpeed   float64
}

// Message is one message received from the device. Exactly one of
// Position and Attitude is set for telemetry messages.
type Message struct {
	Type     MessageType
	Position *PositionNED
	Attitude *AttitudeReading
}

// CommandID identifies a device command
type CommandID int

const (
	CmdConditionChangeAlt CommandID = 113
	CmdConditionYaw       CommandID = 115
)

// CommandLong is a command with seven float parameters.
type CommandLong struct {
	TargetSystem    int
	TargetComponent int
	Command         CommandID
	Params          [7]float64
}

// ErrDeviceClosed is returned by a closed device
var ErrDeviceClosed = errors.New("device closed")

// Device is the connection to the vehicle. Recv never blocks.
type Device interface {
	SendHeartbeat() error
	Recv(t MessageType) (Message, bool)
	SendCommand(cmd CommandLong) error
}

// SimulatorConfig configures a Simulator.
type SimulatorConfig struct {
	// Start is the initial position.
	Start Position

	// Velocity is constant and reported as-is; it does not move the vehicle.
	Velocity Position

	// Yaw is the initial heading in radians.
	Yaw float64

	// Heartbeats is the number of heartbeats the device answers before it
	// goes silent. 0 never goes silent.
	Heartbeats int
}

// Simulator is an in-memory Device. Telemetry alternates between position
// and attitude messages; commands are applied immediately.
type Simulator struct {
	mu         sync.Mutex
	boot       time.Time
	pos        Position
	vel        Position
	yaw        float64
	left       int
	limited    bool
	silent     bool
	closed     bool
	attitude   bool
	heartbeats int
	commands   []CommandLong
}

// NewSimulator creates a simulated device
func NewSimulator(cfg SimulatorConfig) *Simulator {
	return &Simulator{
		boot:    time.Now(),
		pos:     cfg.Start,
		vel:     cfg.Velocity,
		yaw:     cfg.Yaw,
		left:    cfg.Heartbeats,
		limited: cfg.Heartbeats > 0,
	}
}

// SendHeartbeat records a heartbeat from the ground station
func (s *Simulator) SendHeartbeat() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrDeviceClosed
	}
	s.heartbeats++
	return nil
}

// Recv returns the next message of type t, or of any telemetry type when t
// is MsgAny.
func (s *Simulator) Recv(t MessageType) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Message{}, false
	}

	switch t {
	case MsgHeartbeat:
		if s.silent || (s.limited && s.left <= 0) {
			return Message{}, false
		}
		if s.limited {
			s.left--
		}
		return Message{Type: MsgHeartbeat}, true
	case MsgPosition:
		return s.positionLocked(), true
	case MsgAttitude:
		return s.attitudeLocked(), true
	case MsgAny:
		s.attitude = !s.attitude
		if s.attitude {
			return s.attitudeLocked(), true
		}
		return s.positionLocked(), true
	}
	return Message{}, false
}

func (s *Simulator) bootMs() uint32 {
	return uint32(time.Since(s.boot) / time.Millisecond)
}

func (s *Simulator) positionLocked() Message {
	return Message{Type: MsgPosition, Position: &PositionNED{
		TimeBootMs: s.bootMs(),
		X:          s.pos.X, Y: s.pos.Y, Z: s.pos.Z,
		VX: s.vel.X, VY: s.vel.Y, VZ: s.vel.Z,
	}}
}

func (s *Simulator) attitudeLocked() Message {
	return Message{Type: MsgAttitude, Attitude: &AttitudeReading{
		TimeBootMs: s.bootMs(),
		Yaw:        s.yaw,
	}}
}

// SendCommand applies cmd. A change-altitude command moves the vehicle to
// the altitude in param 7; a relative yaw command turns by param 1 degrees
// in the direction of param 3.
func (s *Simulator) SendCommand(cmd CommandLong) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrDeviceClosed
	}

	s.commands = append(s.commands, cmd)
	switch cmd.Command {
	case CmdConditionChangeAlt:
		s.pos.Z = cmd.Params[6]
	case CmdConditionYaw:
		turn := cmd.Params[0] * math.Pi / 180
		if cmd.Params[2] < 0 {
			turn = -turn
		}
		if cmd.Params[3] != 0 {
			s.yaw += turn
		} else {
			s.yaw = turn
		}
		s.yaw = math.Remainder(s.yaw, 2*math.Pi)
	}
	return nil
}

// Disconnect silences heartbeats
func (s *Simulator) Disconnect() {
	s.mu.Lock()
	s.silent = true
	s.mu.Unlock()
}

// Close makes every further call fail
func (s *Simulator) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Heartbeats returns how many heartbeats were sent to the device
func (s *Simulator) Heartbeats() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heartbeats
}

// Commands returns the commands sent to the device
func (s *Simulator) Commands() []CommandLong {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]CommandLong(nil), s.commands...)
}

// State returns the current position and heading
func (s *Simulator) State() (Position, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos, s.yaw
}
