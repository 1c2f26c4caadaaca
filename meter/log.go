package meter

import (
	"github.com/sirupsen/logrus"

	vr "github.com/ineyio/visionrouter"
)

// LogMeter logs admission and routing events using logrus.
type LogMeter struct {
	Logger logrus.FieldLogger
}

var _ vr.Meter = (*LogMeter)(nil)

// NewLogMeter creates a LogMeter with the given logger.
// If logger is nil, the logrus standard logger is used.
func NewLogMeter(logger logrus.FieldLogger) *LogMeter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogMeter{Logger: logger}
}

func (m *LogMeter) OnAdmission(e vr.AdmissionEvent) {
	entry := m.Logger.WithFields(logrus.Fields{
		"user":     e.UserID,
		"model":    e.Model,
		"provider": e.Provider,
		"tier":     e.Tier,
	})
	if e.Allowed {
		entry.Debug("admission allowed")
		return
	}
	entry.WithField("reason", e.Reason).Info("admission denied")
}

func (m *LogMeter) OnRoute(e vr.RouteEvent) {
	entry := m.Logger.WithFields(logrus.Fields{
		"provider": e.Provider,
		"model":    e.Model,
	})
	if e.LastResort {
		entry.Warn("route unknown model to default provider")
		return
	}
	entry.Debug("route")
}

func (m *LogMeter) OnResult(e vr.ResultEvent) {
	entry := m.Logger.WithFields(logrus.Fields{
		"provider":    e.Provider,
		"model":       e.Model,
		"duration_ms": e.Duration.Milliseconds(),
	})
	if e.Success {
		entry.Info("result")
		return
	}
	entry.WithError(e.Error).Warn("result_error")
}

func (m *LogMeter) OnFallback(e vr.FallbackEvent) {
	entry := m.Logger.WithFields(logrus.Fields{
		"original_model": e.OriginalModel,
		"default_model":  e.DefaultModel,
		"success":        e.Success,
	}).WithError(e.Reason)
	if e.Success {
		entry.Info("fallback")
		return
	}
	entry.Error("fallback failed")
}
