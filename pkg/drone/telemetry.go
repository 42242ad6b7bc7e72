package drone

import "fmt"

// Position is a point in local NED coordinates, in metres
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// TelemetryData merges the most recent position and attitude readings.
type TelemetryData struct {
	TimeSinceBoot int64   `json:"time_since_boot"` // s
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	Z             float64 `json:"z"`
	XVelocity     float64 `json:"x_velocity"`
	YVelocity     float64 `json:"y_velocity"`
	ZVelocity     float64 `json:"z_velocity"`
	Roll          float64 `json:"roll"`
	Pitch         float64 `json:"pitch"`
	Yaw           float64 `json:"yaw"`
	RollSpeed     float64 `json:"roll_speed"`
	PitchSpeed    float64 `json:"pitch_speed"`
	YawSpeed      float64 `json:"yaw_speed"`
}

func (d TelemetryData) String() string {
	return fmt.Sprintf("t=%ds pos=(%.2f, %.2f, %.2f) vel=(%.2f, %.2f, %.2f) yaw=%.3f",
		d.TimeSinceBoot, d.X, d.Y, d.Z, d.XVelocity, d.YVelocity, d.ZVelocity, d.Yaw)
}

// Telemetry reads position and attitude messages and combines them.
type Telemetry struct {
	device   Device
	position *PositionNED
	attitude *AttitudeReading
}

// NewTelemetry creates a Telemetry reading from device
func NewTelemetry(device Device) (*Telemetry, error) {
	if device == nil {
		return nil, fmt.Errorf("telemetry: device is required")
	}
	return &Telemetry{device: device}, nil
}

// Run receives at most one message. It returns data once both a position
// and an attitude reading have been seen.
func (t *Telemetry) Run() (TelemetryData, bool) {
	msg, ok := t.device.Recv(MsgAny)
	if !ok {
		return TelemetryData{}, false
	}
	switch msg.Type {
	case MsgPosition:
		t.position = msg.Position
	case MsgAttitude:
		t.attitude = msg.Attitude
	}
	if t.position == nil || t.attitude == nil {
		return TelemetryData{}, false
	}

	p, a := t.position, t.attitude
	boot := p.TimeBootMs
	if a.TimeBootMs > boot {
		boot = a.TimeBootMs
	}
	return TelemetryData{
		TimeSinceBoot: int64(boot) / 1000,
		X:             p.X,
		Y:             p.Y,
		Z:             p.Z,
		XVelocity:     p.VX,
		YVelocity:     p.VY,
		ZVelocity:     p.VZ,
		Roll:          a.Roll,
		Pitch:         a.Pitch,
		Yaw:           a.Yaw,
		RollSpeed:     a.RollSpeed,
		PitchSpeed:    a.PitchSpeed,
		YawSpeed:      a.YawSpeed,
	}, true
}
