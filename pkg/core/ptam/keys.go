package ptam

// Well-known register keys shared by the firmware subsystems.
const (
	// Flight state pair: uint8 code and string description
	KeyState         = "state"
	KeyStateDescript = "stateDescript"

	// Arm token issued by the control surface (string)
	KeyArmToken = "arm_token"

	// Navigation setpoints (double)
	KeyTargetLat      = "TLat"
	KeyTargetLong     = "TLong"
	KeyTargetAlt      = "TAlt"
	KeyCruiseAlt      = "CAlt"
	KeyTargetVelocity = "TVel"

	// Wing and throttle setpoints (double)
	KeyWingFL   = "WingFL"
	KeyWingFR   = "WingFR"
	KeyWingRL   = "WingRL"
	KeyWingRR   = "WingRR"
	KeyThrottle = "THR"

	// GPS receiver (double, GPS_FIX uint8)
	KeyGPSLat  = "GPS_LAT"
	KeyGPSLong = "GPS_LONG"
	KeyGPSSat  = "GPS_SAT"
	KeyGPSAlt  = "GPS_ALT"
	KeyGPSFix  = "GPS_FIX"

	// Inertial unit (double)
	KeyPitch = "PITCH"
	KeyRoll  = "ROLL"
	KeyYaw   = "YAW"
	KeyGyroX = "GYROX"
	KeyGyroY = "GYROY"
	KeyGyroZ = "GYROZ"
	KeyAccX  = "ACCX"
	KeyAccY  = "ACCY"
	KeyAccZ  = "ACCZ"

	// Ambient (double)
	KeyOutsideAirTemp = "OAT"
	KeyPressure       = "PRESS"

	// Power (double)
	KeyBatteryVoltage = "VOLTAGE"
	KeyBatteryCurrent = "CURRENT"
	KeyBatteryPercent = "PERCENT"
	KeyBoardTemp      = "BOARD_TEMP"

	// Sensor board error counter (uint32)
	KeyBoardErrors = "BOARD_ERRS"

	// Cooling fan relay (uint8, 0 off / 1 on)
	KeyFan = "FAN"
)

// SetpointKeys are the navigation setpoints in /INC_SWP field order
var SetpointKeys = []string{KeyTargetLat, KeyTargetLong, KeyTargetAlt, KeyCruiseAlt, KeyTargetVelocity}

// SystemKeys are the wing and throttle setpoints in /INC_SYS field order
var SystemKeys = []string{KeyWingFL, KeyWingFR, KeyWingRL, KeyWingRR, KeyThrottle}

// WingKeys are the wing setpoints in servo pin order
var WingKeys = []string{KeyWingFL, KeyWingFR, KeyWingRL, KeyWingRR}
