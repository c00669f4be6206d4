package telemetry

import (
	"github.com/msto63/hive/pkg/core/ptam"
)

// Binding maps a wire id onto the register it is read from
type Binding struct {
	ID       string
	Register string
}

// Frame is a named telemetry group served by one GET_* route
type Frame struct {
	Name     string
	Bindings []Binding
}

// Reader is the part of the register store a frame reads from
type Reader interface {
	Lookup(key string) (ptam.Value, error)
}

// Frames served to the ground station
var (
	FrameGPS = Frame{Name: "GPS", Bindings: []Binding{
		{"LAT", ptam.KeyGPSLat},
		{"LONG", ptam.KeyGPSLong},
		{"SAT", ptam.KeyGPSSat},
		{"ALT", ptam.KeyGPSAlt},
	}}

	FrameIMU1 = Frame{Name: "IMU1", Bindings: []Binding{
		{"PITCH", ptam.KeyPitch},
		{"ROLL", ptam.KeyRoll},
		{"YAW", ptam.KeyYaw},
		{"GYROY", ptam.KeyGyroY},
	}}

	FrameIMU2 = Frame{Name: "IMU2", Bindings: []Binding{
		{"ACCX", ptam.KeyAccX},
		{"ACCY", ptam.KeyAccY},
		{"ACCZ", ptam.KeyAccZ},
		{"GYROX", ptam.KeyGyroX},
	}}

	FrameW1 = Frame{Name: "W1", Bindings: []Binding{
		{"WFL", ptam.KeyWingFL},
		{"WFR", ptam.KeyWingFR},
		{"WRL", ptam.KeyWingRL},
		{"WRR", ptam.KeyWingRR},
	}}

	FrameAMB = Frame{Name: "AMB", Bindings: []Binding{
		{"OAT", ptam.KeyOutsideAirTemp},
		{"PRESS", ptam.KeyPressure},
		{"GYROZ", ptam.KeyGyroZ},
		{"THROT", ptam.KeyThrottle},
	}}

	FrameBATT = Frame{Name: "BATT", Bindings: []Binding{
		{"VOLTAGE", ptam.KeyBatteryVoltage},
		{"CURRENT", ptam.KeyBatteryCurrent},
		{"PERCENT", ptam.KeyBatteryPercent},
		{"TEMP", ptam.KeyBoardTemp},
	}}
)

// Frames lists every frame by name
var Frames = map[string]Frame{
	FrameGPS.Name:  FrameGPS,
	FrameIMU1.Name: FrameIMU1,
	FrameIMU2.Name: FrameIMU2,
	FrameW1.Name:   FrameW1,
	FrameAMB.Name:  FrameAMB,
	FrameBATT.Name: FrameBATT,
}

// Read builds the frame from live registers. Registers that are absent or
// not numeric read as 0 and are returned in missing.
func (f Frame) Read(r Reader) (fields []Field, missing []string) {
	fields = make([]Field, 0, len(f.Bindings))

	for _, b := range f.Bindings {
		var value float64
		v, err := r.Lookup(b.Register)
		if err == nil {
			n, ok := v.Float()
			if ok {
				value = n
			} else {
				missing = append(missing, b.Register)
			}
		} else {
			missing = append(missing, b.Register)
		}
		fields = append(fields, Field{ID: b.ID, Value: value})
	}

	return fields, missing
}

// Pack reads the frame and encodes it
func (f Frame) Pack(r Reader) (string, []string) {
	fields, missing := f.Read(r)
	return Pack(fields...), missing
}
