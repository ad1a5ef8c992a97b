// Package cli implements the ztime command: resolve a time expression,
// shift and jitter it, optionally wait for it or repeat it.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"ztime/internal/platform/logger"
	"ztime/internal/shared"
	"ztime/pkg/ztime"
)

const usage = `Usage: ztime [flags] [expression ...]

Resolves a time expression and prints the instant. The expression is the
remaining arguments joined by spaces, for example:

  ztime next monday +09:00
  ztime 12:00 --jitter 10m --format millis
  ztime +00:00:05 --wait
  ztime now --every 1h --repeat 3

An expression is an origin (now, today, a weekday, HH[:MM[:SS]] or an
ISO-8601 UTC date ending in Z) followed by offsets such as +01:30 or -1d.

Flags:
`

// Exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

type options struct {
	plus    string
	minus   string
	jitter  string
	every   string
	format  string
	now     string
	repeat  int
	wait    bool
	verbose bool
}

// Run executes the command with args (without the program name).
// Results go to stdout, logs and help to stderr.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var o options

	flagSet := pflag.NewFlagSet("ztime", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&o.plus, "plus", "", "add a duration (HH[:MM[:SS]] or 1d2h30m)")
	flagSet.StringVar(&o.minus, "minus", "", "subtract a duration")
	flagSet.StringVar(&o.jitter, "jitter", "", "move each instant randomly within ±amplitude/2")
	flagSet.StringVar(&o.every, "every", "", "period between repeated instants")
	flagSet.IntVar(&o.repeat, "repeat", 1, "number of instants to print (needs --every when > 1)")
	flagSet.StringVarP(&o.format, "format", "f", "iso", "output format: iso, millis, json or yaml")
	flagSet.StringVar(&o.now, "now", "", "reference instant instead of the system clock (ISO-8601 or millis)")
	flagSet.BoolVarP(&o.wait, "wait", "w", false, "wait until each instant before printing it")
	flagSet.BoolVarP(&o.verbose, "verbose", "v", false, "log grammar matches and loop transitions to stderr")
	flagSet.Usage = func() {
		fmt.Fprint(stderr, usage)
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return shared.MarkKind(err, shared.KindValidation)
	}

	log := slog.New(slog.DiscardHandler)
	if o.verbose {
		log = logger.New(logger.Options{
			Env:          "dev",
			ConsoleLevel: "debug",
			App:          "ztime",
			Writer:       stderr,
			NoColor:      true,
		})
	}

	plan, err := o.plan(flagSet.Args(), log)
	if err != nil {
		return err
	}
	return plan.run(ctx, stdout)
}

// ExitCode maps an error returned by Run to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case shared.IsValidation(err):
		return ExitUsage
	default:
		return ExitFailure
	}
}

type plan struct {
	first  ztime.Time
	every  ztime.Duration
	jitter ztime.Duration
	repeat int
	wait   bool
	format string
	clock  ztime.Clock
	log    *slog.Logger
}

func (o options) plan(args []string, log *slog.Logger) (*plan, error) {
	switch o.format {
	case "iso", "millis", "json", "yaml":
	default:
		return nil, shared.MarkKind(fmt.Errorf("unknown format %q", o.format), shared.KindValidation)
	}
	if o.repeat < 1 {
		return nil, shared.MarkKind(fmt.Errorf("--repeat must be at least 1, got %d", o.repeat), shared.KindValidation)
	}

	var clock ztime.Clock = ztime.SystemClock{}
	if o.now != "" {
		ref, err := ztime.Parse(o.now)
		if err != nil {
			return nil, shared.Wrap(err, "--now")
		}
		clock = ztime.FixedClock{At: ref.Time()}
	}

	parser := ztime.NewParser(ztime.WithClock(clock), ztime.WithLogger(log))
	at, err := parser.Parse(strings.Join(args, " "))
	if err != nil {
		return nil, err
	}

	plus, err := flagDuration("--plus", o.plus)
	if err != nil {
		return nil, err
	}
	minus, err := flagDuration("--minus", o.minus)
	if err != nil {
		return nil, err
	}
	every, err := flagDuration("--every", o.every)
	if err != nil {
		return nil, err
	}
	jitter, err := flagDuration("--jitter", o.jitter)
	if err != nil {
		return nil, err
	}

	if o.repeat > 1 && every.ToMilliseconds() <= 0 {
		return nil, shared.MarkKind(errors.New("--repeat needs a positive --every"), shared.KindValidation)
	}

	return &plan{
		first:  at.Plus(plus).Minus(minus),
		every:  every,
		jitter: jitter,
		repeat: o.repeat,
		wait:   o.wait,
		format: o.format,
		clock:  clock,
		log:    log,
	}, nil
}

func flagDuration(name, text string) (ztime.Duration, error) {
	if text == "" {
		return ztime.Duration{}, nil
	}
	d, err := ztime.ParseDuration(text)
	if err != nil {
		return ztime.Duration{}, shared.Wrap(err, name)
	}
	return d, nil
}

func (p *plan) run(ctx context.Context, stdout io.Writer) error {
	if !p.wait {
		nominal := p.first
		for i := 0; i < p.repeat; i++ {
			if err := p.print(stdout, nominal.Jitter(p.jitter)); err != nil {
				return err
			}
			nominal = nominal.Plus(p.every)
		}
		return nil
	}

	nominal := p.first
	printed := 0
	_, err := ztime.Loop(ctx, nominal.Jitter(p.jitter), func(ctx context.Context, at ztime.Time, next *ztime.Next) (int, error) {
		if err := p.print(stdout, at); err != nil {
			return printed, err
		}
		printed++
		if printed < p.repeat {
			nominal = nominal.Plus(p.every)
			next.At(nominal.Jitter(p.jitter))
		}
		return printed, nil
	}, ztime.WithClock(p.waitClock()), ztime.WithLogger(p.log))
	return err
}

// waitClock keeps the real timer but shifts "now" so waiting is measured
// against the reference instant given with --now.
func (p *plan) waitClock() ztime.Clock {
	fixed, ok := p.clock.(ztime.FixedClock)
	if !ok {
		return p.clock
	}
	return offsetClock{offset: fixed.At.Sub(time.Now())}
}

type offsetClock struct {
	offset time.Duration
}

func (c offsetClock) Now() time.Time                         { return time.Now().Add(c.offset) }
func (c offsetClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

type instant struct {
	At     ztime.Time `json:"at" yaml:"at"`
	Millis int64      `json:"millis" yaml:"millis"`
}

func (p *plan) print(w io.Writer, at ztime.Time) error {
	var err error
	switch p.format {
	case "millis":
		_, err = fmt.Fprintln(w, at.Millis())
	case "json":
		var b []byte
		b, err = json.Marshal(instant{at, at.Millis()})
		if err == nil {
			_, err = fmt.Fprintln(w, string(b))
		}
	case "yaml":
		// One document per instant so repeated output stays a valid stream.
		var b []byte
		b, err = yaml.Marshal(instant{at, at.Millis()})
		if err == nil {
			_, err = fmt.Fprintf(w, "---\n%s", b)
		}
	default:
		_, err = fmt.Fprintln(w, at.ISO())
	}
	return err
}
