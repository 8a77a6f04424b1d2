package instance

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/nabbar/reactor/certificates"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/nabbar/reactor/channel"
	"github.com/nabbar/reactor/job"
	"github.com/nabbar/reactor/listener"
	"github.com/nabbar/reactor/poller"
	"github.com/nabbar/reactor/timer"
)

// Hooks are the Instance's init/lifecycle callbacks, fired in the order
// given by spec.md §4.11: channels, listeners, child (parent only),
// timer, extras, then the main loop, then exit.
type Hooks struct {
	InitChannel  func(inst *Instance) error
	InitListener func(inst *Instance) error
	InitChild    func(inst *Instance) error
	InitTimer    func(inst *Instance) error
	InitExtras   func(inst *Instance) error
	EndTurn      func(inst *Instance)
	Exit         func(inst *Instance)
	ExitChild    func(inst *Instance, pid int)
}

// Instance is the process scaffold described in spec.md §4.11: one
// poller, one job manager, one timer, a set of listeners, and the
// signal-driven main loop.
type Instance struct {
	Config   *Config
	Log      *logrus.Entry
	DiagLog  hclog.Logger
	Poller   poller.Poller
	Registry *channel.Registry
	Jobs     *job.Manager
	Timer    *timer.Timer
	TLS      certificates.TLSConfig

	Listeners []*listener.Listener

	Nats *nats.Conn

	hooks Hooks

	run        atomic.Bool
	reload     atomic.Bool
	checkChild atomic.Bool
	childPids  []int
}

// New builds an Instance from a loaded Config; it does not yet create
// the poller or listeners (that happens in Bootstrap, after signal
// handlers are installed, matching spec.md's sequencing).
func New(cfg *Config, hooks Hooks) *Instance {
	log := logrus.New()
	if cfg.LogTrace {
		log.SetLevel(logrus.TraceLevel)
	}
	if err := setupLogging(log, cfg); err != nil {
		log.WithError(err).Warn("log file setup failed, continuing with stderr only")
	}
	inst := &Instance{
		Config:  cfg,
		Log:     log.WithField("app", cfg.AppName),
		DiagLog: hclog.New(&hclog.LoggerOptions{Name: "reactor", Level: hclog.Warn}),
		Jobs:    job.NewManager(nil),
		Timer:   timer.New(),
		TLS:     certificates.New(),
		hooks:   hooks,
	}
	inst.Registry = channel.NewRegistry()
	inst.run.Store(true)
	return inst
}

// Bootstrap runs the full sequence from spec.md §4.11 steps 1-5 and
// returns ready to Run the main loop.
func (i *Instance) Bootstrap(ctx context.Context) error {
	i.installSignals()

	p, err := poller.New(poller.Kind(i.Config.PollerType), i.DiagLog)
	if err != nil {
		i.Log.WithError(err).Error("poller init failed")
		return err
	}
	i.Poller = p

	if i.Config.NatsURL != "" {
		nc, err := nats.Connect(i.Config.NatsURL)
		if err != nil {
			i.Log.WithError(err).Warn("nats connect failed, multi-child broadcast disabled")
		} else {
			i.Nats = nc
		}
	}

	if i.hooks.InitChannel != nil {
		if err := i.hooks.InitChannel(i); err != nil {
			return err
		}
	}
	if i.hooks.InitListener != nil {
		if err := i.hooks.InitListener(i); err != nil {
			return err
		}
	}
	if i.Config.ChildType == "multi" && i.Config.ChildCount > 0 {
		if i.hooks.InitChild != nil {
			if err := i.hooks.InitChild(i); err != nil {
				return err
			}
		}
	}
	if i.hooks.InitTimer != nil {
		if err := i.hooks.InitTimer(i); err != nil {
			return err
		}
	}
	if i.hooks.InitExtras != nil {
		if err := i.hooks.InitExtras(i); err != nil {
			return err
		}
	}
	return nil
}

// installSignals wires SIGHUP (reload), SIGCHLD (check-child),
// SIGUSR1/USR2/INT (shutdown); SIGPIPE/SIGALRM are ignored.
func (i *Instance) installSignals() {
	sig := make(chan os.Signal, 8)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGCHLD, syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGINT, syscall.SIGPIPE, syscall.SIGALRM)
	go func() {
		for s := range sig {
			switch s {
			case syscall.SIGHUP:
				i.reload.Store(true)
			case syscall.SIGCHLD:
				i.checkChild.Store(true)
			case syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGINT:
				i.run.Store(false)
				i.wake()
			case syscall.SIGPIPE, syscall.SIGALRM:
				// ignored
			}
		}
	}()
}

// wake is a placeholder for the self-wake fd the spec describes for
// waking poller.Dispatch from outside the reactor thread; Go's signal
// channel already wakes select/poll loops that watch ctx.Done(), so the
// reactor's Dispatch timeout (bounded below) is sufficient here.
func (i *Instance) wake() {}

// Run drives the main loop until a shutdown signal flips run to false or
// ctx is cancelled.
func (i *Instance) Run(ctx context.Context) {
	for i.run.Load() {
		select {
		case <-ctx.Done():
			i.run.Store(false)
			continue
		default:
		}

		if i.checkChild.CompareAndSwap(true, false) {
			i.reapChildren()
		}
		if i.reload.CompareAndSwap(true, false) {
			i.reloadConfig()
		}

		timeout := i.Config.PollerTimeout
		if timeout <= 0 {
			timeout = time.Second
		}
		_, _ = i.Poller.Dispatch(timeout)

		i.Jobs.CheckTimeout(i.Config.JobTimeout, i.resolveChannelName)
		i.Timer.Check()

		if i.hooks.EndTurn != nil {
			i.hooks.EndTurn(i)
		}
	}
	if i.hooks.Exit != nil {
		i.hooks.Exit(i)
	}
}

func (i *Instance) resolveChannelName(name string) (uint32, bool) {
	return 0, false // application wires its own name->Channel index; see chpool
}

func (i *Instance) reloadConfig() {
	cfg, err := LoadConfig("")
	if err != nil {
		i.Log.WithError(err).Warn("config reload failed")
		return
	}
	i.Config = cfg
	i.Log.Info("config reloaded")
}

func (i *Instance) reapChildren() {
	for {
		var status syscall.WaitStatus
		pid, err := syscall.Wait4(-1, &status, syscall.WNOHANG, nil)
		if err != nil || pid <= 0 {
			return
		}
		for idx, p := range i.childPids {
			if p == pid {
				i.childPids = append(i.childPids[:idx], i.childPids[idx+1:]...)
				break
			}
		}
		if i.hooks.ExitChild != nil {
			i.hooks.ExitChild(i, pid)
		}
	}
}
