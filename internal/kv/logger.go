package kv

import "go.uber.org/zap"

// badgerLogger routes badger's printf-style logging into zap. Info and
// Debug are dropped to debug level since badger is chatty.
type badgerLogger struct {
	sugar *zap.SugaredLogger
}

func newBadgerLogger(logger *zap.Logger) *badgerLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &badgerLogger{sugar: logger.Named("badger").Sugar()}
}

func (l *badgerLogger) Errorf(format string, args ...any)   { l.sugar.Errorf(format, args...) }
func (l *badgerLogger) Warningf(format string, args ...any) { l.sugar.Warnf(format, args...) }
func (l *badgerLogger) Infof(format string, args ...any)    { l.sugar.Debugf(format, args...) }
func (l *badgerLogger) Debugf(format string, args ...any)   { l.sugar.Debugf(format, args...) }
