package abstractjb

import (
	"fmt"
	"os"
	"strings"

	"github.com/ghettovoice/gosip/log"

	"github.com/cloudwebrtc/go-jitterbuf/pkg/utils"
)

// frameLog is the optional per-call trace of every put and get decision.
// A nil frameLog discards everything.
type frameLog struct {
	file   *os.File
	logger log.Logger
}

func openFrameLog(dir, leg, peer string) (*frameLog, error) {
	pattern := fmt.Sprintf("jb_%s_%s_*.log", sanitize(leg), sanitize(peer))
	file, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("create frame log: %w", err)
	}
	return &frameLog{
		file:   file,
		logger: utils.NewWriterLogger(file, "JB"),
	}, nil
}

func (fl *frameLog) Name() string {
	return fl.file.Name()
}

func (fl *frameLog) printf(format string, args ...interface{}) {
	if fl == nil {
		return
	}
	fl.logger.Infof(format, args...)
}

func (fl *frameLog) Close() error {
	return fl.file.Close()
}

// sanitize keeps channel names like "SIP/alice-0001" usable in file names.
func sanitize(name string) string {
	if name == "" {
		return "none"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		}
		return '_'
	}, name)
}
