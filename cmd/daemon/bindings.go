package main

import (
	"errors"
	"net/url"
	"sync"

	log "github.com/sirupsen/logrus"

	playsight "github.com/playsight/go-playsight"
	"github.com/playsight/go-playsight/emitter"
	"github.com/playsight/go-playsight/livequality"
	"github.com/playsight/go-playsight/metrics"
	"github.com/playsight/go-playsight/session"
	"github.com/playsight/go-playsight/startup"
	"github.com/playsight/go-playsight/stats"
)

// Bindings is the adapter layer: it maps named ingress events onto the
// imperative operations of the three trackers.
type Bindings struct {
	logger playsight.Logger
	clock  playsight.Clock

	ingress *Ingress
	sess    *session.Machine
	stats   *stats.StartupStats
	metrics *metrics.Metrics

	// The live machine is driven exclusively from the ingress goroutine;
	// liveMu only guards the handle and the cached snapshot the API reads.
	liveMu       sync.Mutex
	live         *livequality.Machine
	lastQuality  *livequality.Quality
	bufferEndSub *emitter.Subscription
}

func NewBindings(logger playsight.Logger, clock playsight.Clock, ingress *Ingress, sess *session.Machine, startupStats *stats.StartupStats, m *metrics.Metrics) *Bindings {
	return &Bindings{
		logger:  logger,
		clock:   clock,
		ingress: ingress,
		sess:    sess,
		stats:   startupStats,
		metrics: m,
	}
}

// Wire registers every adapter handler on the ingress emitters.
func (b *Bindings) Wire() {
	ev := b.ingress.Player().Events()

	ev.On(playsight.EventPageRequested, b.onPageRequested)
	ev.On(playsight.EventLiveSessionStart, b.onLiveSessionStart)
	ev.On(playsight.EventLiveSessionEnd, b.onLiveSessionEnd)
	ev.On(playsight.EventTimeProgressed, func(any) { b.refreshQuality() })

	ev.On(playsight.EventEnterPage, func(p any) {
		query, err := url.ParseQuery(payloadString(p, "query"))
		if err != nil {
			log.WithError(err).Warnf("unparsable page query, ignoring")
		}

		b.sess.EnterPage(session.EnterPageParams{
			AutomaticAutoplay: payloadBool(p, "autoplay"),
			ResumePosition:    payloadFloat(p, "resume_position"),
			Deeplink:          payloadBool(p, "deeplink"),
			Query:             query,
		})
	})
	ev.On(playsight.EventPlayerReady, func(any) { b.sess.PlayerReady() })
	ev.On(playsight.EventCuePointFilled, func(p any) { b.sess.CuePointFilled(payloadBool(p, "preroll")) })
	ev.On(playsight.EventAdPodEmpty, func(p any) { b.sess.AdPodEmpty(payloadBool(p, "preroll")) })
	ev.On(playsight.EventAdPodStart, func(p any) { b.sess.AdPodStart(payloadBool(p, "preroll")) })
	ev.On(playsight.EventAdStart, func(p any) { b.sess.AdStart(payloadBool(p, "preroll")) })
	ev.On(playsight.EventAdStall, func(any) { b.sess.AdStall() })
	ev.On(playsight.EventContentStart, func(p any) { b.sess.ContentStart(payloadFloat(p, "position")) })
	ev.On(playsight.EventPauseAction, func(p any) { b.sess.MarkPauseAction(int(payloadFloat(p, "level"))) })
	ev.On(playsight.EventPaused, func(any) { b.sess.Paused() })
	ev.On(playsight.EventTimeupdate, func(p any) { b.sess.Timeupdate(payloadFloat(p, "position")) })
	ev.On(playsight.EventFeedback, func(p any) { b.sess.SetFeedback(payloadString(p, "issue")) })
	ev.On(playsight.EventShowErrorModal, func(any) { b.sess.ShowErrorModal() })
	ev.On(playsight.EventHideErrorModal, func(any) { b.sess.HideErrorModal() })
	ev.On(playsight.EventAdError, func(p any) { b.sess.AdError(errors.New(payloadString(p, "message"))) })
	ev.On(playsight.EventContentError, func(p any) { b.sess.ContentError(errors.New(payloadString(p, "message"))) })
	ev.On(playsight.EventViewTime, func(p any) { b.sess.AddViewTime(payloadFloat(p, "seconds")) })
	ev.On(playsight.EventAdViewTime, func(p any) { b.sess.AddAdViewTime(payloadFloat(p, "seconds")) })
	ev.On(playsight.EventExitCause, func(p any) {
		b.sess.SetCause(session.Cause{Code: payloadString(p, "code"), Detail: payloadString(p, "detail")})
	})
	ev.On(playsight.EventExitDoubts, func(p any) { b.sess.SetDoubts(payloadCauses(p)) })
	ev.On(playsight.EventReloadSrc, func(any) { b.sess.ReloadSrc() })
	ev.On(playsight.EventReattachVideo, func(any) { b.sess.ReattachVideoElement() })
	ev.On(playsight.EventHdmiStatus, func(p any) { b.sess.UpdateHdmiConnectionStatus(payloadString(p, "status")) })
	ev.On(playsight.EventRegistrationGate, func(any) { b.sess.EnterEpisodeRegistrationGate() })
	ev.On(playsight.EventDrmFallback, func(any) { b.sess.EnterDrmFallback() })
	ev.On(playsight.EventSessionEnd, func(any) { b.sess.EndVODSession() })
	ev.On(playsight.EventSessionReset, func(any) { b.sess.ResetVODPageSession() })
}

// onPageRequested arms the startup tracker for a fresh run.
func (b *Bindings) onPageRequested(any) {
	tracker := startup.StartRun(startup.Options{Log: b.logger, Clock: b.clock})
	tracker.AttachReporter(func(report startup.Report) {
		log.WithField("milestones", len(report)).Infof("startup run finished")
		b.stats.Observe(report, tracker.IsAdRun())
		b.metrics.ObserveStartupReport(report)
	})
	tracker.AttachPlayer(b.ingress.Player())
}

func (b *Bindings) onLiveSessionStart(any) {
	b.liveMu.Lock()
	defer b.liveMu.Unlock()

	if b.live != nil {
		b.live.Destroy()
	}
	if b.bufferEndSub != nil {
		b.bufferEndSub.Cancel()
	}

	b.live = livequality.New(
		livequality.Options{Log: b.logger, Clock: b.clock},
		b.ingress.Player(), b.ingress.Engine(),
	)

	// registered after the machine's own handler so the snapshot taken in
	// onBufferEnd already accounts for the interval that triggered it
	b.bufferEndSub = b.ingress.Player().Events().On(playsight.EventBufferEnd, b.onBufferEnd)

	quality := b.live.GetQuality()
	b.lastQuality = &quality
}

func (b *Bindings) onLiveSessionEnd(any) {
	b.liveMu.Lock()
	defer b.liveMu.Unlock()

	if b.live == nil {
		return
	}

	if b.bufferEndSub != nil {
		b.bufferEndSub.Cancel()
		b.bufferEndSub = nil
	}

	quality := b.live.GetQuality()
	b.lastQuality = &quality
	b.metrics.ObserveQuality(quality)
	b.live.Destroy()
}

func (b *Bindings) onBufferEnd(any) {
	b.liveMu.Lock()
	defer b.liveMu.Unlock()

	if b.live == nil {
		return
	}

	b.metrics.IncBufferEvents()
	quality := b.live.GetQuality()
	b.lastQuality = &quality
	b.metrics.ObserveQuality(quality)
}

func (b *Bindings) refreshQuality() {
	b.liveMu.Lock()
	defer b.liveMu.Unlock()

	if b.live == nil {
		return
	}

	quality := b.live.GetQuality()
	b.lastQuality = &quality
}

// QualitySnapshot returns the most recent live quality snapshot, if any
// live session existed this page.
func (b *Bindings) QualitySnapshot() (livequality.Quality, bool) {
	b.liveMu.Lock()
	defer b.liveMu.Unlock()

	if b.lastQuality == nil {
		return livequality.Quality{}, false
	}

	return *b.lastQuality, true
}

func payloadMap(p any) map[string]any {
	m, _ := p.(map[string]any)
	return m
}

func payloadFloat(p any, key string) float64 {
	v, _ := payloadMap(p)[key].(float64)
	return v
}

func payloadBool(p any, key string) bool {
	v, _ := payloadMap(p)[key].(bool)
	return v
}

func payloadString(p any, key string) string {
	v, _ := payloadMap(p)[key].(string)
	return v
}

func payloadCauses(p any) []session.Cause {
	list, _ := payloadMap(p)["causes"].([]any)

	causes := make([]session.Cause, 0, len(list))
	for _, item := range list {
		m, _ := item.(map[string]any)
		code, _ := m["code"].(string)
		detail, _ := m["detail"].(string)
		causes = append(causes, session.Cause{Code: code, Detail: detail})
	}
	return causes
}
