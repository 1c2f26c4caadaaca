package meter

import vr "github.com/ineyio/visionrouter"

// NoopMeter is a meter that does nothing.
type NoopMeter struct{}

var _ vr.Meter = (*NoopMeter)(nil)

func (m *NoopMeter) OnAdmission(vr.AdmissionEvent) {}
func (m *NoopMeter) OnRoute(vr.RouteEvent)         {}
func (m *NoopMeter) OnResult(vr.ResultEvent)       {}
func (m *NoopMeter) OnFallback(vr.FallbackEvent)   {}
