package clock

import (
	"errors"
	"sync/atomic"

	"go.uber.org/zap"
)

var errInvalidPeriod = errors.New("timer facility reported a zero period")

var pkgLogger atomic.Pointer[zap.Logger]

// SetLogger sets the logger used by Clocks created afterwards without
// WithLogger. A nil logger restores the no-op default.
func SetLogger(l *zap.Logger) {
	pkgLogger.Store(l)
}

func logger() *zap.Logger {
	if l := pkgLogger.Load(); l != nil {
		return l
	}
	return zap.NewNop()
}
