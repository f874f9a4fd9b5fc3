// Package receiver talks to a Denon AVR-3808CI through the web interface it serves
// on port 80. State is scraped from the main zone status page and commands are
// posted back as form fields.
package receiver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/thatsimonsguy/avr-controller/internal/model"
)

const (
	statusPath  = "/MAINZONE/d_mainzone.asp"
	controlPath = "/MAINZONE/s_mainzone.asp"

	defaultTimeout = 5 * time.Second
)

// Form field names used by the main zone page.
const (
	fieldPower     = "radioSystemPower"
	fieldMute      = "checkMmute"
	fieldVolume    = "textMas"
	fieldSetVolume = "setMas"
	fieldInput     = "listInputFunction"
)

// Client controls the main zone of a single receiver. It is safe for concurrent use;
// concurrent calls each do their own round trip, only the short state cache is shared.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	now        func() time.Time
	cache      *stateCache
}

type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds every request made to the receiver.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithClock overrides time.Now for the state cache.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient returns a client for the receiver at host, which is an IP address or
// host name with an optional port.
func NewClient(host string, opts ...Option) *Client {
	c := &Client{
		baseURL:    "http://" + host,
		httpClient: &http.Client{},
		timeout:    defaultTimeout,
		now:        time.Now,
		cache:      newStateCache(stateTTL),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetFullState returns the receiver's state, fetching it unless the last fetch was
// less than 250ms ago. A receiver that refuses connections, is unreachable or times
// out is reported as switched off rather than as an error.
func (c *Client) GetFullState(ctx context.Context) (model.ReceiverState, error) {
	if c.cache.isFresh(c.now()) {
		return c.cache.read(), nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.baseURL+statusPath, nil)
	if err != nil {
		return model.ReceiverState{}, fmt.Errorf("receiver: build status request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Only our own timeout says anything about the receiver.
		if ctx.Err() != nil {
			return model.ReceiverState{}, fmt.Errorf("receiver: get status: %w", err)
		}
		if isDeviceAbsent(err) {
			state := model.DefaultState()
			c.cache.write(state, c.now())
			return state, nil
		}
		return model.ReceiverState{}, fmt.Errorf("receiver: get status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.ReceiverState{}, &StatusError{StatusCode: resp.StatusCode}
	}

	state, err := parseStatusPage(resp.Body)
	if err != nil {
		return model.ReceiverState{}, err
	}

	c.cache.write(state, c.now())
	return state, nil
}

func parseStatusPage(r io.Reader) (model.ReceiverState, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return model.ReceiverState{}, fmt.Errorf("%w: %w", ErrUnexpectedPage, err)
	}

	volumeDB, err := DeviceStringToDB(doc.Find("input[name='" + fieldVolume + "']").AttrOr("value", ""))
	if err != nil {
		return model.ReceiverState{}, err
	}

	isMuted := doc.Find("input[name='"+fieldMute+"']").AttrOr("value", "") == "on"

	options := doc.Find("select[name='" + fieldInput + "'] > option")
	selected := options.Filter("[selected]").First()
	if selected.Length() == 0 {
		selected = options.First()
	}
	input := model.Input(strings.TrimSpace(selected.AttrOr("value", "")))
	if !input.Valid() {
		input = model.InputUnknown
	}

	return model.ReceiverState{
		IsPoweredOn:   true,
		Input:         input,
		VolumeDB:      volumeDB,
		VolumePercent: DBToPercent(volumeDB),
		IsMuted:       isMuted,
	}, nil
}

func (c *Client) GetPowerState(ctx context.Context) (bool, error) {
	state, err := c.GetFullState(ctx)
	if err != nil {
		return false, err
	}
	return state.IsPoweredOn, nil
}

func (c *Client) GetMuteState(ctx context.Context) (bool, error) {
	state, err := c.GetFullState(ctx)
	if err != nil {
		return false, err
	}
	return state.IsMuted, nil
}

func (c *Client) GetVolumePercent(ctx context.Context) (float64, error) {
	state, err := c.GetFullState(ctx)
	if err != nil {
		return 0, err
	}
	return state.VolumePercent, nil
}

func (c *Client) GetVolumeDB(ctx context.Context) (float64, error) {
	state, err := c.GetFullState(ctx)
	if err != nil {
		return 0, err
	}
	return state.VolumeDB, nil
}

func (c *Client) GetInput(ctx context.Context) (model.Input, error) {
	state, err := c.GetFullState(ctx)
	if err != nil {
		return model.InputUnknown, err
	}
	return state.Input, nil
}

// SetPowerState puts the receiver into standby. Switching it on is not possible over
// HTTP and fails with ErrPowerOnUnsupported without contacting the receiver.
func (c *Client) SetPowerState(ctx context.Context, on bool) (bool, error) {
	if on {
		return false, ErrPowerOnUnsupported
	}
	if err := c.post(ctx, url.Values{fieldPower: {"STANDBY"}}); err != nil {
		return false, err
	}
	c.cache.update(func(s *model.ReceiverState) { s.IsPoweredOn = false })
	return false, nil
}

func (c *Client) SetMuteState(ctx context.Context, muted bool) (bool, error) {
	value := "off"
	if muted {
		value = "on"
	}
	if err := c.post(ctx, url.Values{fieldMute: {value}}); err != nil {
		return false, err
	}
	c.cache.update(func(s *model.ReceiverState) { s.IsMuted = muted })
	return muted, nil
}

// SetVolumePercent sets the volume on the 0-100 scale and returns the percentage
// after rounding to the device step. Anything below 2% selects the mute floor.
func (c *Client) SetVolumePercent(ctx context.Context, percent float64) (float64, error) {
	rounded := RoundToDeviceStep(percent)
	db := PercentToDB(rounded)
	if err := c.postVolume(ctx, db); err != nil {
		return 0, err
	}
	c.cache.update(func(s *model.ReceiverState) {
		s.VolumeDB = db
		s.VolumePercent = DBToPercent(db)
	})
	return rounded, nil
}

// SetVolumeDB sets the volume in dB and returns the value actually sent, rounded to
// the 0.5 dB device step.
func (c *Client) SetVolumeDB(ctx context.Context, db float64) (float64, error) {
	rounded := RoundToDeviceStep(db)
	if err := c.postVolume(ctx, rounded); err != nil {
		return 0, err
	}
	c.cache.update(func(s *model.ReceiverState) {
		s.VolumeDB = rounded
		s.VolumePercent = DBToPercent(rounded)
	})
	return rounded, nil
}

func (c *Client) postVolume(ctx context.Context, db float64) error {
	return c.post(ctx, url.Values{
		fieldVolume:    {DBToDeviceString(db)},
		fieldSetVolume: {"on"},
	})
}

// SetInput selects a source. Identifiers outside the enumeration fail with
// ErrInvalidInput without contacting the receiver.
func (c *Client) SetInput(ctx context.Context, input model.Input) (model.Input, error) {
	if !input.Valid() {
		return model.InputUnknown, fmt.Errorf("%w %q", ErrInvalidInput, input)
	}
	if err := c.post(ctx, url.Values{fieldInput: {string(input)}}); err != nil {
		return model.InputUnknown, err
	}
	c.cache.update(func(s *model.ReceiverState) { s.Input = input })
	return input, nil
}

// post sends one command. Unlike GetFullState, transport errors are returned as-is
// even when the receiver looks switched off.
func (c *Client) post(ctx context.Context, form url.Values) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+controlPath, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("receiver: build command request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("receiver: send command: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}
