// Package accessory exposes the receiver to HomeKit. Mute and volume are mapped onto
// a light bulb (on = unmuted, brightness = volume) because the Home app does not
// control speakers; a speaker service is published as well for apps that do.
package accessory

import (
	"context"
	"math"
	"sync"

	hcaccessory "github.com/brutella/hc/accessory"
	"github.com/brutella/hc/characteristic"
	"github.com/brutella/hc/service"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/avr-controller/internal/config"
	"github.com/thatsimonsguy/avr-controller/internal/model"
)

const (
	manufacturer = "Denon"
	modelName    = "AVR-3808CI"
)

// Receiver is the part of receiver.Client the accessory drives.
type Receiver interface {
	GetFullState(ctx context.Context) (model.ReceiverState, error)
	GetPowerState(ctx context.Context) (bool, error)
	SetPowerState(ctx context.Context, on bool) (bool, error)
	GetMuteState(ctx context.Context) (bool, error)
	SetMuteState(ctx context.Context, muted bool) (bool, error)
	GetVolumePercent(ctx context.Context) (float64, error)
	SetVolumePercent(ctx context.Context, percent float64) (float64, error)
	GetInput(ctx context.Context) (model.Input, error)
	SetInput(ctx context.Context, input model.Input) (model.Input, error)
}

type inputSwitch struct {
	input model.Input
	*service.Switch
}

type Accessory struct {
	*hcaccessory.Accessory

	receiver  Receiver
	name      string
	maxVolume float64

	power      *service.Switch
	light      *service.Lightbulb
	brightness *characteristic.Brightness
	speaker    *service.Speaker
	speakerOn  *characteristic.On
	volume     *characteristic.Volume
	inputs     []inputSwitch

	// serializes characteristic writes coming from HomeKit and the poller
	mu sync.Mutex
}

func New(cfg config.Config, receiver Receiver) *Accessory {
	info := hcaccessory.Info{
		Name:         cfg.Name,
		Manufacturer: manufacturer,
		Model:        modelName,
		SerialNumber: cfg.IP,
	}

	a := &Accessory{
		Accessory: hcaccessory.New(info, hcaccessory.TypeOther),
		receiver:  receiver,
		name:      cfg.Name,
		maxVolume: float64(cfg.MaxVolume),
	}

	if cfg.AddPowerSwitch {
		// Only switching off works; on requires the remote or the front panel.
		a.power = service.NewSwitch()
		addName(a.power.Service, cfg.Name+" Power")
		a.power.On.OnValueRemoteGet(a.getPower)
		a.power.On.OnValueRemoteUpdate(a.setPower)
		a.AddService(a.power.Service)
	}

	a.light = service.NewLightbulb()
	addName(a.light.Service, cfg.Name)
	a.light.On.OnValueRemoteGet(a.getLightOn)
	a.light.On.OnValueRemoteUpdate(a.setLightOn)
	a.brightness = characteristic.NewBrightness()
	a.brightness.OnValueRemoteGet(a.getBrightness)
	a.brightness.OnValueRemoteUpdate(a.setBrightness)
	a.light.AddCharacteristic(a.brightness.Characteristic)
	a.AddService(a.light.Service)

	a.speaker = service.NewSpeaker()
	addName(a.speaker.Service, cfg.Name)
	a.speakerOn = characteristic.NewOn()
	a.speakerOn.OnValueRemoteGet(a.getPower)
	a.speakerOn.OnValueRemoteUpdate(a.setPower)
	a.speaker.AddCharacteristic(a.speakerOn.Characteristic)
	a.speaker.Mute.OnValueRemoteGet(a.getMute)
	a.speaker.Mute.OnValueRemoteUpdate(a.setMute)
	a.volume = characteristic.NewVolume()
	a.volume.OnValueRemoteGet(a.getVolume)
	a.volume.OnValueRemoteUpdate(a.setVolume)
	a.speaker.AddCharacteristic(a.volume.Characteristic)
	a.AddService(a.speaker.Service)

	for _, in := range model.Inputs() {
		friendly, ok := cfg.Inputs[in]
		if !ok {
			if !cfg.SwitchesForAllInputs {
				continue
			}
			friendly = string(in)
		}
		a.addInputSwitch(in, friendly)
	}
	for _, in := range cfg.UnknownInputs() {
		log.Error().Str("input", string(in)).Msg("Incorrect input name in config, not adding input switch")
	}

	return a
}

func addName(s *service.Service, name string) {
	n := characteristic.NewName()
	n.SetValue(name)
	s.AddCharacteristic(n.Characteristic)
}

func (a *Accessory) addInputSwitch(in model.Input, friendly string) {
	sw := inputSwitch{input: in, Switch: service.NewSwitch()}
	addName(sw.Service, a.name+" "+friendly)
	sw.On.OnValueRemoteGet(func() bool { return a.getInput(sw) })
	sw.On.OnValueRemoteUpdate(func(on bool) { a.setInput(sw, on) })
	a.inputs = append(a.inputs, sw)
	a.AddService(sw.Service)
}

// Sync pushes a polled snapshot into every characteristic without sending
// anything to the receiver.
func (a *Accessory) Sync(state model.ReceiverState) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.power != nil {
		a.power.On.SetValue(state.IsPoweredOn)
	}
	a.speakerOn.SetValue(state.IsPoweredOn)
	a.light.On.SetValue(!state.IsMuted)
	a.speaker.Mute.SetValue(state.IsMuted)
	a.setVolumeValues(state.VolumePercent)
	for _, sw := range a.inputs {
		sw.On.SetValue(sw.input == state.Input)
	}
}

func (a *Accessory) setVolumeValues(percent float64) {
	v := int(math.Round(percent))
	a.brightness.SetValue(v)
	a.volume.SetValue(v)
}

// storedBool and storedInt read what was last pushed into a characteristic.
// GetValue can't be used from a remote-get handler since it calls the handler again.
func (a *Accessory) storedBool(c *characteristic.Characteristic) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, _ := c.Value.(bool)
	return v
}

func (a *Accessory) storedInt(c *characteristic.Characteristic) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch v := c.Value.(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint8:
		return int(v)
	case uint32:
		return int(v)
	case uint64:
		return int(v)
	case float32:
		return int(math.Round(float64(v)))
	case float64:
		return int(math.Round(v))
	}
	return 0
}

func (a *Accessory) getPower() bool {
	on, err := a.receiver.GetPowerState(context.Background())
	if err != nil {
		log.Error().Err(err).Msg("Couldn't get receiver power state")
		return a.storedBool(a.speakerOn.Characteristic)
	}
	log.Debug().Bool("on", on).Msg("Receiver power state")
	return on
}

func (a *Accessory) setPower(on bool) {
	current, err := a.receiver.SetPowerState(context.Background(), on)
	if err != nil {
		log.Error().Err(err).Bool("requested", on).Msg("Couldn't set receiver power state")
		current = !on
	} else {
		log.Info().Bool("on", current).Msg("Receiver power state changed")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.power != nil {
		a.power.On.SetValue(current)
	}
	a.speakerOn.SetValue(current)
}

func (a *Accessory) getMute() bool {
	muted, err := a.receiver.GetMuteState(context.Background())
	if err != nil {
		log.Error().Err(err).Msg("Couldn't get receiver mute state")
		return a.storedBool(a.speaker.Mute.Characteristic)
	}
	return muted
}

func (a *Accessory) setMute(muted bool) {
	current, err := a.receiver.SetMuteState(context.Background(), muted)
	if err != nil {
		log.Error().Err(err).Bool("requested", muted).Msg("Couldn't set receiver mute state")
		current = !muted
	} else {
		log.Info().Bool("muted", current).Msg("Receiver mute state changed")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.speaker.Mute.SetValue(current)
	a.light.On.SetValue(!current)
}

// The light is on while the receiver is unmuted.
func (a *Accessory) getLightOn() bool {
	return !a.getMute()
}

func (a *Accessory) setLightOn(on bool) {
	a.setMute(!on)
}

func (a *Accessory) getVolumePercent() (float64, bool) {
	pct, err := a.receiver.GetVolumePercent(context.Background())
	if err != nil {
		log.Error().Err(err).Msg("Couldn't get receiver volume")
		return 0, false
	}
	return pct, true
}

func (a *Accessory) getBrightness() int {
	pct, ok := a.getVolumePercent()
	if !ok {
		return a.storedInt(a.brightness.Characteristic)
	}
	return int(math.Round(pct))
}

func (a *Accessory) getVolume() int {
	pct, ok := a.getVolumePercent()
	if !ok {
		return a.storedInt(a.volume.Characteristic)
	}
	return int(math.Round(pct))
}

func (a *Accessory) setBrightness(v int) {
	a.applyVolume(float64(v))
}

func (a *Accessory) setVolume(v int) {
	a.applyVolume(float64(v))
}

// applyVolume caps the request at the configured maximum so a slip of the finger in
// the Home app can't blast the speakers.
func (a *Accessory) applyVolume(percent float64) {
	percent = math.Min(percent, a.maxVolume)

	current, err := a.receiver.SetVolumePercent(context.Background(), percent)
	if err != nil {
		log.Error().Err(err).Float64("requested", percent).Msg("Couldn't set receiver volume")
		a.resync()
		return
	}
	log.Info().Float64("volume_percent", current).Msg("Receiver volume changed")

	a.mu.Lock()
	defer a.mu.Unlock()
	a.setVolumeValues(current)
}

func (a *Accessory) getInput(sw inputSwitch) bool {
	current, err := a.receiver.GetInput(context.Background())
	if err != nil {
		log.Error().Err(err).Msg("Couldn't get receiver input")
		return a.storedBool(sw.On.Characteristic)
	}
	return current == sw.input
}

// setInput selects sw's input. Input switches behave like radio buttons: they can
// only be turned off by turning on another one.
func (a *Accessory) setInput(sw inputSwitch, on bool) {
	if !on {
		log.Error().Str("input", string(sw.input)).Msg("Cannot turn off input buttons, turn on one of the other input buttons instead")
		a.mu.Lock()
		sw.On.SetValue(true)
		a.mu.Unlock()
		return
	}

	current, err := a.receiver.SetInput(context.Background(), sw.input)
	if err != nil {
		log.Error().Err(err).Str("input", string(sw.input)).Msg("Couldn't set receiver input")
		a.resync()
		return
	}
	log.Info().Str("input", string(current)).Msg("Receiver input changed")

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, other := range a.inputs {
		other.On.SetValue(other.input == current)
	}
}

// resync restores characteristics after a failed command.
func (a *Accessory) resync() {
	state, err := a.receiver.GetFullState(context.Background())
	if err != nil {
		log.Warn().Err(err).Msg("Couldn't refresh receiver state")
		return
	}
	a.Sync(state)
}
