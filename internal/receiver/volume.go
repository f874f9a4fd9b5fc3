package receiver

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// The receiver's display runs from -80 dB to +18 dB in 0.5 dB steps. Below that it
// shows "--", which is treated as negative infinity.
const (
	MinVolumeDB = -80.0
	MaxVolumeDB = 18.0

	// percentOffset maps -80 dB to 2 % and +18 dB to 100 %.
	percentOffset = 82.0

	// mutePercent is the lowest percentage that still maps onto the dB scale.
	mutePercent = 2.0

	muteFloorString = "--"
)

// MuteFloor is the volume reported when the display shows "--".
var MuteFloor = math.Inf(-1)

// RoundToDeviceStep rounds to the nearest 0.5.
func RoundToDeviceStep(volume float64) float64 {
	return 0.5 * jsRound(2*volume)
}

// jsRound rounds half up, so -0.5 becomes 0 rather than -1.
func jsRound(x float64) float64 {
	return math.Floor(x + 0.5)
}

func PercentToDB(percent float64) float64 {
	if percent < mutePercent {
		return MuteFloor
	}
	return percent - percentOffset
}

func DBToPercent(db float64) float64 {
	if math.IsInf(db, -1) {
		return 0
	}
	return db + percentOffset
}

// DBToDeviceString formats a dB value the way the receiver's volume form expects it.
func DBToDeviceString(db float64) string {
	if math.IsInf(db, -1) {
		return muteFloorString
	}
	return strconv.FormatFloat(db, 'f', -1, 64)
}

// DeviceStringToDB parses the volume display string and clamps it to the dB scale.
func DeviceStringToDB(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == muteFloorString {
		return MuteFloor, nil
	}
	db, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(db) {
		return 0, fmt.Errorf("%w: volume %q", ErrUnexpectedPage, s)
	}
	return math.Min(math.Max(db, MinVolumeDB), MaxVolumeDB), nil
}
