package model

import (
	"encoding/json"
	"math"
	"strings"
)

// Input is one of the receiver's fixed source identifiers.
type Input string

const (
	InputTVCBL   Input = "TV/CBL"
	InputTuner   Input = "TUNER"
	InputPhono   Input = "PHONO"
	InputCD      Input = "CD"
	InputDVD     Input = "DVD"
	InputHDP     Input = "HDP"
	InputSAT     Input = "SAT"
	InputVCRiPod Input = "VCR/iPod"
	InputDVR     Input = "DVR"
	InputVAUX    Input = "V.AUX"
	InputNetUSB  Input = "NET/USB"
	InputXM      Input = "XM"

	// InputUnknown is stored when the device reports a source outside the enumeration.
	InputUnknown Input = ""
)

// inputs is ordered the way the receiver presents them.
var inputs = [...]Input{
	InputTVCBL,
	InputTuner,
	InputPhono,
	InputCD,
	InputDVD,
	InputHDP,
	InputSAT,
	InputVCRiPod,
	InputDVR,
	InputVAUX,
	InputNetUSB,
	InputXM,
}

// Inputs returns a copy of the ordered input enumeration.
func Inputs() []Input {
	out := make([]Input, len(inputs))
	copy(out, inputs[:])
	return out
}

// Valid reports whether in is a member of the enumeration.
func (in Input) Valid() bool {
	for _, v := range inputs {
		if v == in {
			return true
		}
	}
	return false
}

// LookupInput matches name case-insensitively against the enumeration.
func LookupInput(name string) (Input, bool) {
	for _, v := range inputs {
		if strings.EqualFold(string(v), name) {
			return v, true
		}
	}
	return InputUnknown, false
}

// ReceiverState is a snapshot of the main zone.
// VolumeDB is math.Inf(-1) when the display shows the mute floor ("--").
type ReceiverState struct {
	IsPoweredOn   bool
	Input         Input
	VolumeDB      float64
	VolumePercent float64
	IsMuted       bool
}

// DefaultState is what an unreachable receiver looks like.
func DefaultState() ReceiverState {
	return ReceiverState{
		IsPoweredOn:   false,
		Input:         InputUnknown,
		VolumeDB:      -80,
		VolumePercent: 0,
		IsMuted:       true,
	}
}

// AtMuteFloor reports whether the volume is below the device's lowest step.
func (s ReceiverState) AtMuteFloor() bool {
	return math.IsInf(s.VolumeDB, -1)
}

type stateJSON struct {
	IsPoweredOn   bool     `json:"is_powered_on"`
	Input         string   `json:"input"`
	VolumeDB      *float64 `json:"volume_db"`
	VolumePercent float64  `json:"volume_percent"`
	IsMuted       bool     `json:"is_muted"`
}

// MarshalJSON encodes the mute floor as a null volume_db, since JSON has no infinity.
func (s ReceiverState) MarshalJSON() ([]byte, error) {
	out := stateJSON{
		IsPoweredOn:   s.IsPoweredOn,
		Input:         string(s.Input),
		VolumePercent: s.VolumePercent,
		IsMuted:       s.IsMuted,
	}
	if !s.AtMuteFloor() {
		db := s.VolumeDB
		out.VolumeDB = &db
	}
	return json.Marshal(out)
}

func (s *ReceiverState) UnmarshalJSON(data []byte) error {
	var in stateJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*s = ReceiverState{
		IsPoweredOn:   in.IsPoweredOn,
		Input:         Input(in.Input),
		VolumeDB:      math.Inf(-1),
		VolumePercent: in.VolumePercent,
		IsMuted:       in.IsMuted,
	}
	if in.VolumeDB != nil {
		s.VolumeDB = *in.VolumeDB
	}
	return nil
}
