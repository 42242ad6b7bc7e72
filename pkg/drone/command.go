package drone

import (
	"fmt"
	"math"
	"strconv"

	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/core"
)

const (
	// AltitudeTolerance is the altitude error, in metres, left uncorrected.
	AltitudeTolerance = 0.5

	// YawTolerance is the heading error, in radians, left uncorrected.
	YawTolerance = math.Pi / 36

	yawRate   = 5.0 // deg/s
	climbRate = 1.0 // m/s
)

// Decision is the outcome of one telemetry reading.
type Decision struct {
	// AltitudeDelta is target minus current altitude, 0 within tolerance.
	AltitudeDelta float64

	// YawDelta is the relative turn in degrees within [-180, 180], 0 within
	// tolerance.
	YawDelta float64

	// AverageSpeed is speed divided by time since boot.
	AverageSpeed float64
}

// Reports returns the lines sent back to the orchestrator.
func (d Decision) Reports() []string {
	return []string{
		"CHANGE_ALTITUDE: " + formatFloat(d.AltitudeDelta),
		"CHANGING_YAW: " + formatFloat(d.YawDelta),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Commander steers the vehicle towards a target.
type Commander struct {
	device Device
	target Position
	logger core.Logger
}

// NewCommander creates a Commander
func NewCommander(device Device, target Position, logger core.Logger) (*Commander, error) {
	if device == nil {
		return nil, fmt.Errorf("command: device is required")
	}
	if logger == nil {
		logger = core.NewNopLogger()
	}
	return &Commander{device: device, target: target, logger: logger}, nil
}

// Decide computes the corrections for data without sending anything.
func (c *Commander) Decide(data TelemetryData) Decision {
	var d Decision
	if data.TimeSinceBoot > 0 {
		speed := math.Sqrt(data.XVelocity*data.XVelocity + data.YVelocity*data.YVelocity + data.ZVelocity*data.ZVelocity)
		d.AverageSpeed = speed / float64(data.TimeSinceBoot)
	}

	if dz := c.target.Z - data.Z; math.Abs(dz) > AltitudeTolerance {
		d.AltitudeDelta = dz
	}

	heading := math.Atan2(c.target.Y-data.Y, c.target.X-data.X)
	turn := math.Remainder(heading-data.Yaw, 2*math.Pi)
	if math.Abs(turn) > YawTolerance {
		d.YawDelta = turn * 180 / math.Pi
	}
	return d
}

// Run decides on data and sends the needed commands to the device.
func (c *Commander) Run(data TelemetryData) (Decision, error) {
	d := c.Decide(data)
	c.logger.Debugf("telemetry %s, average speed %.3f m/s", data, d.AverageSpeed)

	if d.AltitudeDelta != 0 {
		cmd := CommandLong{TargetSystem: 1, Command: CmdConditionChangeAlt}
		cmd.Params[0] = climbRate
		cmd.Params[6] = c.target.Z
		if err := c.device.SendCommand(cmd); err != nil {
			return d, fmt.Errorf("send change altitude: %w", err)
		}
	}
	if d.YawDelta != 0 {
		cmd := CommandLong{TargetSystem: 1, Command: CmdConditionYaw}
		cmd.Params[0] = math.Abs(d.YawDelta)
		cmd.Params[1] = yawRate
		cmd.Params[2] = 1
		if d.YawDelta < 0 {
			cmd.Params[2] = -1
		}
		cmd.Params[3] = 1
		if err := c.device.SendCommand(cmd); err != nil {
			return d, fmt.Errorf("send yaw: %w", err)
		}
	}
	return d, nil
}
