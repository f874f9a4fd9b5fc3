package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/avr-controller/internal/model"
)

type MockReceiver struct {
	state   model.ReceiverState
	getErr  error
	setErr  error
	actions []string
}

func (m *MockReceiver) GetFullState(ctx context.Context) (model.ReceiverState, error) {
	return m.state, m.getErr
}

func (m *MockReceiver) SetMuteState(ctx context.Context, muted bool) (bool, error) {
	m.actions = append(m.actions, fmt.Sprintf("mute=%v", muted))
	return muted, m.setErr
}

func (m *MockReceiver) SetVolumePercent(ctx context.Context, percent float64) (float64, error) {
	m.actions = append(m.actions, fmt.Sprintf("percent=%v", percent))
	return percent, m.setErr
}

func (m *MockReceiver) SetVolumeDB(ctx context.Context, db float64) (float64, error) {
	m.actions = append(m.actions, fmt.Sprintf("db=%v", db))
	return db, m.setErr
}

func (m *MockReceiver) SetInput(ctx context.Context, input model.Input) (model.Input, error) {
	m.actions = append(m.actions, fmt.Sprintf("input=%s", input))
	return input, m.setErr
}

type result struct {
	stdout string
	stderr string
	err    error
	failed bool
	ip     string
}

func execute(t *testing.T, mock *MockReceiver, args ...string) result {
	t.Helper()
	t.Setenv("AVR_IP", "")

	var stdout, stderr bytes.Buffer
	var usedIP string
	a := &app{
		stdout: &stdout,
		stderr: &stderr,
		connect: func(ip string) Receiver {
			usedIP = ip
			return mock
		},
	}

	cmd := a.rootCmd()
	if args == nil {
		// cobra falls back to os.Args when args is nil
		args = []string{}
	}
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.ExecuteContext(context.Background())

	return result{stdout: stdout.String(), stderr: stderr.String(), err: err, failed: a.failed, ip: usedIP}
}

func poweredOn() model.ReceiverState {
	return model.ReceiverState{IsPoweredOn: true, Input: model.InputDVD, VolumeDB: -40, VolumePercent: 42, IsMuted: true}
}

func TestNoArgsPrintsState(t *testing.T) {
	mock := &MockReceiver{state: poweredOn()}

	res := execute(t, mock)

	require.NoError(t, res.err)
	assert.False(t, res.failed)
	assert.Empty(t, mock.actions)
	assert.Equal(t, "Current state:\n"+
		"    Power is on\n"+
		"    Input: DVD\n"+
		"    Volume: -40 db, 42%\n"+
		"    Muted\n", res.stdout)
	assert.Equal(t, defaultIP, res.ip)
}

func TestUnknownCommandStillPrintsState(t *testing.T) {
	mock := &MockReceiver{state: poweredOn()}

	res := execute(t, mock, "dance")

	require.NoError(t, res.err)
	assert.Empty(t, mock.actions)
	assert.Contains(t, res.stdout, "Power is on")
}

func TestMuteFloorPrintsDashes(t *testing.T) {
	mock := &MockReceiver{state: model.ReceiverState{IsPoweredOn: true, VolumeDB: math.Inf(-1)}}

	res := execute(t, mock)

	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Volume: -- db, 0%")
	assert.NotContains(t, res.stdout, "Muted")
}

func TestCommands(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{"mute", []string{"mute"}, []string{"mute=true"}},
		{"unmute", []string{"unmute"}, []string{"mute=false"}},
		{"input case insensitive", []string{"input", "net/usb"}, []string{"input=NET/USB"}},
		{"volume percent", []string{"volume", "50%"}, []string{"percent=50"}},
		{"volume percent clamped", []string{"volume", "150%"}, []string{"percent=100"}},
		{"volume db", []string{"volume", "-20db"}, []string{"db=-20"}},
		{"volume db upper case", []string{"volume", "-20.5DB"}, []string{"db=-20.5"}},
		{"volume db clamped", []string{"volume", "-95db"}, []string{"db=-80"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &MockReceiver{state: poweredOn()}

			res := execute(t, mock, tt.args...)

			require.NoError(t, res.err)
			assert.False(t, res.failed, res.stderr)
			assert.Equal(t, tt.expected, mock.actions)
			assert.Contains(t, res.stdout, "Current state:")
		})
	}
}

func TestIPFlag(t *testing.T) {
	mock := &MockReceiver{state: poweredOn()}

	res := execute(t, mock, "--ip", "10.0.0.5", "mute")
	require.NoError(t, res.err)
	assert.Equal(t, "10.0.0.5", res.ip)

	res = execute(t, mock, "volume", "--ip=10.0.0.6", "-30db")
	require.NoError(t, res.err)
	assert.Equal(t, "10.0.0.6", res.ip)
}

func TestInvalidInputReportsAndPrintsState(t *testing.T) {
	mock := &MockReceiver{state: poweredOn()}

	res := execute(t, mock, "input", "BOGUS")

	require.NoError(t, res.err)
	assert.True(t, res.failed)
	assert.Empty(t, mock.actions)
	assert.Contains(t, res.stderr, "invalid input")
	assert.Contains(t, res.stdout, "Current state:")
}

func TestActionErrorStillPrintsState(t *testing.T) {
	mock := &MockReceiver{state: poweredOn(), setErr: errors.New("connection refused")}

	res := execute(t, mock, "mute")

	require.NoError(t, res.err)
	assert.True(t, res.failed)
	assert.Contains(t, res.stderr, "connection refused")
	assert.Contains(t, res.stdout, "Power is on")
}

func TestStateErrorIsReported(t *testing.T) {
	mock := &MockReceiver{getErr: errors.New("status code 500")}

	res := execute(t, mock)

	require.NoError(t, res.err)
	assert.True(t, res.failed)
	assert.Contains(t, res.stderr, "status code 500")
	assert.Empty(t, res.stdout)
}

func TestParseVolume(t *testing.T) {
	tests := []struct {
		in        string
		value     float64
		isPercent bool
		wantErr   bool
	}{
		{"50%", 50, true, false},
		{"0%", 0, true, false},
		{"-5%", 0, true, false},
		{"101%", 100, true, false},
		{"-20db", -20, false, false},
		{"-20dB", -20, false, false},
		{"25db", 18, false, false},
		{"-100DB", -80, false, false},
		{"50", 0, false, true},
		{"loud%", 0, false, true},
		{"nan%", 0, false, true},
		{"xdb", 0, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v, err := parseVolume(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.value, v.value)
			assert.Equal(t, tt.isPercent, v.isPercent)
		})
	}
}
