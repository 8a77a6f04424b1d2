package instance

import (
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// rotatingFileHook is a logrus.Hook that appends to a file, reopening it
// whenever the rotation boundary (day or hour) is crossed. It mirrors the
// open/rotate/reopen shape of nabbar-golib's HookFile, trimmed to the one
// policy spec.md §6's log.*.rotate keys need: "daily" or "hourly".
type rotatingFileHook struct {
	mu       sync.Mutex
	path     string
	period   time.Duration
	boundary time.Time
	file     *os.File
	levels   []logrus.Level
}

func newRotatingFileHook(path string, rotate string, levels []logrus.Level) (*rotatingFileHook, error) {
	period := 24 * time.Hour
	if rotate == "hourly" {
		period = time.Hour
	}
	h := &rotatingFileHook{path: path, period: period, levels: levels}
	if err := h.open(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *rotatingFileHook) open() error {
	f, err := os.OpenFile(h.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	h.file = f
	h.boundary = time.Now().Truncate(h.period).Add(h.period)
	return nil
}

func (h *rotatingFileHook) Levels() []logrus.Level {
	if h.levels != nil {
		return h.levels
	}
	return logrus.AllLevels
}

func (h *rotatingFileHook) Fire(entry *logrus.Entry) error {
	line, err := entry.Logger.Formatter.Format(entry)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if time.Now().After(h.boundary) {
		_ = h.file.Close()
		if err := h.open(); err != nil {
			return err
		}
	}
	_, err = h.file.Write(line)
	return err
}

func (h *rotatingFileHook) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.file.Close()
}

// setupLogging wires the app log (LogCmdPath) and the error log
// (LogErrPath) as separate rotating file hooks on the same logrus.Logger,
// per spec.md §6's log.cmd.* / log.err.* split between normal and error
// output.
func setupLogging(base *logrus.Logger, cfg *Config) error {
	if cfg.LogCmdPath != "" {
		h, err := newRotatingFileHook(cfg.LogCmdPath, cfg.LogCmdRotate, nil)
		if err != nil {
			return err
		}
		base.AddHook(h)
	}
	if cfg.LogErrPath != "" {
		h, err := newRotatingFileHook(cfg.LogErrPath, cfg.LogErrRotate, []logrus.Level{
			logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel, logrus.WarnLevel,
		})
		if err != nil {
			return err
		}
		base.AddHook(h)
	}
	if _, isTTY := os.LookupEnv("TERM"); isTTY {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		base.SetFormatter(&logrus.JSONFormatter{})
	}
	return nil
}
