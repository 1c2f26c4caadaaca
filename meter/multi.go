package meter

import vr "github.com/ineyio/visionrouter"

// Multi fans every event out to several meters.
type Multi []vr.Meter

var _ vr.Meter = Multi(nil)

func (m Multi) OnAdmission(e vr.AdmissionEvent) {
	for _, x := range m {
		x.OnAdmission(e)
	}
}

func (m Multi) OnRoute(e vr.RouteEvent) {
	for _, x := range m {
		x.OnRoute(e)
	}
}

func (m Multi) OnResult(e vr.ResultEvent) {
	for _, x := range m {
		x.OnResult(e)
	}
}

func (m Multi) OnFallback(e vr.FallbackEvent) {
	for _, x := range m {
		x.OnFallback(e)
	}
}
