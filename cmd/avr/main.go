package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/thatsimonsguy/avr-controller/internal/model"
	"github.com/thatsimonsguy/avr-controller/internal/receiver"
)

const defaultIP = "192.168.1.8"

// Receiver is the part of receiver.Client the command line uses.
type Receiver interface {
	GetFullState(ctx context.Context) (model.ReceiverState, error)
	SetMuteState(ctx context.Context, muted bool) (bool, error)
	SetVolumePercent(ctx context.Context, percent float64) (float64, error)
	SetVolumeDB(ctx context.Context, db float64) (float64, error)
	SetInput(ctx context.Context, input model.Input) (model.Input, error)
}

type app struct {
	ip      string
	stdout  io.Writer
	stderr  io.Writer
	connect func(ip string) Receiver
	failed  bool
}

func main() {
	a := &app{
		stdout:  os.Stdout,
		stderr:  os.Stderr,
		connect: func(ip string) Receiver { return receiver.NewClient(ip) },
	}
	if err := a.rootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	if a.failed {
		os.Exit(1)
	}
}

func inputList() string {
	names := make([]string, 0, len(model.Inputs()))
	for _, in := range model.Inputs() {
		names = append(names, string(in))
	}
	return strings.Join(names, ", ")
}

func (a *app) rootCmd() *cobra.Command {
	ip := os.Getenv("AVR_IP")
	if ip == "" {
		ip = defaultIP
	}

	root := &cobra.Command{
		Use:   "avr",
		Short: "Denon AVR-3808CI command line utility",
		Long: "Uses the receiver's HTTP server to set and retrieve input, mute state, and volume.\n" +
			"Without a command, or with an unrecognized one, only the current state is printed.",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.printState(cmd.Context(), a.connect(a.ip))
		},
	}
	root.PersistentFlags().StringVar(&a.ip, "ip", ip, "Receiver IP address or host name (default from AVR_IP)")

	root.AddCommand(
		&cobra.Command{
			Use:   "input NAME",
			Short: "Select an input, one of: " + inputList(),
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.run(cmd.Context(), func(ctx context.Context, r Receiver) error {
					in, ok := model.LookupInput(args[0])
					if !ok {
						return fmt.Errorf("invalid input %q, must be one of: %s", args[0], inputList())
					}
					_, err := r.SetInput(ctx, in)
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "mute",
			Short: "Mute the main zone",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.run(cmd.Context(), func(ctx context.Context, r Receiver) error {
					_, err := r.SetMuteState(ctx, true)
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "unmute",
			Short: "Unmute the main zone",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.run(cmd.Context(), func(ctx context.Context, r Receiver) error {
					_, err := r.SetMuteState(ctx, false)
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "volume N%|Ndb",
			Short: "Set the volume as a percentage in [0, 100] or in dB in [-80, 18]",
			Example: "  avr volume 50%\n" +
				"  avr volume -20db",
			// "-20db" would otherwise be parsed as a shorthand flag.
			DisableFlagParsing: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				args, help := a.takeFlags(args)
				if help {
					return cmd.Help()
				}
				if len(args) != 1 {
					return fmt.Errorf("accepts 1 arg(s), received %d", len(args))
				}
				return a.run(cmd.Context(), func(ctx context.Context, r Receiver) error {
					v, err := parseVolume(args[0])
					if err != nil {
						return err
					}
					if v.isPercent {
						_, err = r.SetVolumePercent(ctx, v.value)
					} else {
						_, err = r.SetVolumeDB(ctx, v.value)
					}
					return err
				})
			},
		},
	)

	return root
}

// takeFlags picks --ip and --help out of args for commands that parse their own flags.
func (a *app) takeFlags(args []string) ([]string, bool) {
	var rest []string
	help := false
	for i := 0; i < len(args); i++ {
		switch arg := args[i]; {
		case arg == "-h" || arg == "--help":
			help = true
		case arg == "--ip" && i+1 < len(args):
			a.ip = args[i+1]
			i++
		case strings.HasPrefix(arg, "--ip="):
			a.ip = strings.TrimPrefix(arg, "--ip=")
		default:
			rest = append(rest, arg)
		}
	}
	return rest, help
}

// run performs one action and prints the resulting state. A failed action is
// reported but the state is still printed.
func (a *app) run(ctx context.Context, action func(context.Context, Receiver) error) error {
	r := a.connect(a.ip)
	if err := action(ctx, r); err != nil {
		fmt.Fprintln(a.stderr, "Error:", err)
		a.failed = true
	}
	return a.printState(ctx, r)
}

func (a *app) printState(ctx context.Context, r Receiver) error {
	state, err := r.GetFullState(ctx)
	if err != nil {
		fmt.Fprintln(a.stderr, "Error:", err)
		a.failed = true
		return nil
	}

	power := "off"
	if state.IsPoweredOn {
		power = "on"
	}
	fmt.Fprintln(a.stdout, "Current state:")
	fmt.Fprintf(a.stdout, "    Power is %s\n", power)
	fmt.Fprintf(a.stdout, "    Input: %s\n", state.Input)
	fmt.Fprintf(a.stdout, "    Volume: %s db, %s%%\n", receiver.DBToDeviceString(state.VolumeDB), strconv.FormatFloat(state.VolumePercent, 'f', -1, 64))
	if state.IsMuted {
		fmt.Fprintln(a.stdout, "    Muted")
	}
	return nil
}

type volumeArg struct {
	value     float64
	isPercent bool
}

// parseVolume accepts "<N>%" (clamped to [0, 100]) or "<N>db" in any case
// (clamped to [-80, 18]).
func parseVolume(s string) (volumeArg, error) {
	lower := strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.HasSuffix(lower, "%"):
		v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(lower, "%")), 64)
		if err != nil || math.IsNaN(v) {
			return volumeArg{}, fmt.Errorf("invalid volume %q, must be a number in range [0, 100] followed by %%", s)
		}
		return volumeArg{value: clamp(v, 0, 100), isPercent: true}, nil
	case strings.HasSuffix(lower, "db"):
		v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(lower, "db")), 64)
		if err != nil || math.IsNaN(v) {
			return volumeArg{}, fmt.Errorf("invalid volume %q, must be a number in range [-80, 18] followed by db", s)
		}
		return volumeArg{value: clamp(v, receiver.MinVolumeDB, receiver.MaxVolumeDB)}, nil
	default:
		return volumeArg{}, fmt.Errorf("invalid volume %q, must be a number in range [0, 100] followed by %% sign, or a number in range [-80, 18] followed by db", s)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
