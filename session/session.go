// Package session tracks the watch lifecycle of the current page: which
// stage the session is in, how it got there, and the diagnostics needed to
// explain why it ended. Exactly one machine is live per process; the host
// owns it and must not call into it from multiple goroutines.
package session

import (
	"net/url"
	"strings"

	playsight "github.com/playsight/go-playsight"
)

// PlaybackSource describes how playback on this page was initiated, derived
// from the page's query parameters.
type PlaybackSource string

const (
	SourceUnknown         PlaybackSource = "unknown"
	SourceAutoplayTrailer PlaybackSource = "autoplay_from_trailer"
	SourceVideoPreview    PlaybackSource = "video_preview"
)

// Pause action levels, in ascending order of user intent. The default
// deliberateness predicate treats PauseLevelUser and above as deliberate.
const (
	PauseLevelUnknown    = 0
	PauseLevelSystem     = 1
	PauseLevelVisibility = 2
	PauseLevelUser       = 3
	PauseLevelRemote     = 4
)

// Cause is a structured exit or doubt cause.
type Cause struct {
	Code   string `json:"code"`
	Detail string `json:"detail,omitempty"`
}

// Snapshot is the full session record as published to the debug surface.
type Snapshot struct {
	Stage          Stage          `json:"stage"`
	Contents       int            `json:"contents"`
	CuePoints      int            `json:"cue_points"`
	Ads            int            `json:"ads"`
	Autoplay       bool           `json:"autoplay"`
	ResumePosition float64        `json:"resume_position"`
	PlaybackSource PlaybackSource `json:"playback_source"`

	ConvertTime     int64   `json:"convert_time"`
	ConvertPosition float64 `json:"convert_position"`
	StartTime       int64   `json:"start_time"`
	TitleStartTime  int64   `json:"title_start_time"`

	IsAd       bool  `json:"is_ad"`
	AdStalled  bool  `json:"ad_stalled"`
	LastAdTime int64 `json:"last_ad_time"`

	Paused            bool `json:"paused"`
	IsPauseExplicit   bool `json:"is_pause_explicit"`
	PauseLevel        int  `json:"pause_level"`
	IsAdPauseExplicit bool `json:"is_ad_pause_explicit"`

	ViewTime   float64 `json:"view_time"`
	AdViewTime float64 `json:"ad_view_time"`

	LastContentError string  `json:"last_content_error,omitempty"`
	LastAdError      string  `json:"last_ad_error,omitempty"`
	Cause            *Cause  `json:"cause,omitempty"`
	Doubts           []Cause `json:"doubts,omitempty"`
	Feedback         string  `json:"feedback,omitempty"`
	ErrorModalShown  bool    `json:"error_modal_shown"`
	HdmiStatus       string  `json:"hdmi_status,omitempty"`

	ReloadingSrc       bool `json:"reloading_src"`
	ReattachingVideo   bool `json:"reattaching_video"`
	InRegistrationGate bool `json:"in_registration_gate"`

	Deeplink bool `json:"deeplink"`
}

// Listener receives stage-change and session-ended notifications. Stage
// changes fire synchronously and only on effective (value-changing) writes.
type Listener interface {
	OnStageChange(newStage, previousStage Stage)
	OnSessionEnded()
}

type Options struct {
	Log   playsight.Logger
	Clock playsight.Clock

	// EarlyStartGap in seconds; zero falls back to the platform default.
	EarlyStartGap int

	// IsDeliberatePause classifies a pause action level as user-initiated.
	// Nil falls back to level >= PauseLevelUser.
	IsDeliberatePause func(level int) bool

	// Publish receives a copy of the record on every stage write (effective
	// or not) and on reset. This is the external snapshot surface.
	Publish func(*Snapshot)
}

type Machine struct {
	log   playsight.Logger
	clock playsight.Clock

	earlyStartGap     int
	isDeliberatePause func(int) bool
	publish           func(*Snapshot)

	rec       Snapshot
	listeners []Listener
}

// EnterPageParams carries everything the page knows at entry time.
type EnterPageParams struct {
	AutomaticAutoplay bool
	ResumePosition    float64
	Deeplink          bool
	Query             url.Values
}

func NewMachine(opts Options) *Machine {
	m := &Machine{
		log:               opts.Log,
		clock:             opts.Clock,
		earlyStartGap:     opts.EarlyStartGap,
		isDeliberatePause: opts.IsDeliberatePause,
		publish:           opts.Publish,
	}

	if m.log == nil {
		m.log = &playsight.NullLogger{}
	}
	if m.clock == nil {
		m.clock = playsight.SystemClock{}
	}
	if m.earlyStartGap <= 0 {
		m.earlyStartGap = playsight.DefaultEarlyStartGap
	}
	if m.isDeliberatePause == nil {
		m.isDeliberatePause = func(level int) bool { return level >= PauseLevelUser }
	}

	m.rec = Snapshot{
		Stage:          StageNone,
		PlaybackSource: SourceUnknown,
		StartTime:      m.clock.Now().UnixMilli(),
	}
	m.publishSnapshot()

	return m
}

func (m *Machine) AddListener(l Listener) {
	m.listeners = append(m.listeners, l)
}

// setStage performs the compare-then-mutate-then-notify sequence. The
// snapshot surface is fed on every write, listeners only on value changes.
func (m *Machine) setStage(s Stage) {
	if s == m.rec.Stage {
		m.publishSnapshot()
		return
	}

	prev := m.rec.Stage
	m.rec.Stage = s
	m.log.Debugf("session stage %s -> %s", prev, s)
	m.publishSnapshot()

	for _, l := range m.listeners {
		l.OnStageChange(s, prev)
	}
}

func (m *Machine) publishSnapshot() {
	if m.publish == nil {
		return
	}

	snapshot := m.Snapshot()
	m.publish(&snapshot)
}

// Snapshot returns a copy of the current record.
func (m *Machine) Snapshot() Snapshot {
	snapshot := m.rec
	if m.rec.Doubts != nil {
		snapshot.Doubts = append([]Cause(nil), m.rec.Doubts...)
	}
	return snapshot
}

// EnterPage marks the start of a new watch attempt on this page.
func (m *Machine) EnterPage(p EnterPageParams) {
	m.rec.Contents++
	m.rec.Autoplay = p.AutomaticAutoplay
	m.rec.ResumePosition = p.ResumePosition
	m.rec.ConvertPosition = p.ResumePosition
	m.rec.Deeplink = p.Deeplink

	// first matching query parameter wins, no match keeps the previous value
	if p.Query.Has("trailer_autoplay") {
		m.rec.PlaybackSource = SourceAutoplayTrailer
	} else if p.Query.Has("video_preview") {
		m.rec.PlaybackSource = SourceVideoPreview
	}

	m.setStage(StageIdle)
}

func (m *Machine) PlayerReady() {
	m.setStage(StageReady)
}

func (m *Machine) CuePointFilled(isPreroll bool) {
	m.rec.CuePoints++
	if isPreroll {
		m.setStage(StageBeforePreroll)
	} else {
		m.setStage(StageBeforeMidroll)
	}
}

// AdPodEmpty only matters before any ad flow has started: an empty preroll
// pod while still idle moves the session to the empty-preroll stage,
// anything else is a no-op.
func (m *Machine) AdPodEmpty(isPreroll bool) {
	if isPreroll && m.rec.Stage == StageIdle {
		m.setStage(StageEmptyPreroll)
	}
}

func (m *Machine) AdPodStart(isPreroll bool) {
	m.rec.ConvertTime = m.clock.Now().UnixMilli()
	m.rec.IsAd = true

	if isPreroll {
		m.setStage(StagePreroll)
	} else {
		m.setStage(StageMidroll)
	}
}

func (m *Machine) AdStart(isPreroll bool) {
	if m.rec.ConvertTime == 0 {
		m.rec.ConvertTime = m.clock.Now().UnixMilli()
	}

	m.rec.IsAd = true
	m.rec.Ads++
	m.rec.AdStalled = false
	m.rec.LastAdTime = m.clock.Now().UnixMilli()

	if isPreroll {
		m.setStage(StagePreroll)
	} else {
		m.setStage(StageMidroll)
	}
}

func (m *Machine) AdStall() {
	m.rec.AdStalled = true
}

// ContentStart records the ad-to-content convert and moves to the stage
// matching where the content started from.
func (m *Machine) ContentStart(position float64) {
	var next Stage
	switch m.rec.Stage {
	case StagePreroll:
		next = StageAfterPreroll
	case StageMidroll:
		next = StageAfterMidroll
	default:
		next = StageEarlyStart
	}

	m.rec.ConvertTime = m.clock.Now().UnixMilli()
	m.rec.ConvertPosition = position
	m.rec.IsAd = false
	m.rec.AdStalled = false

	m.setStage(next)
}

// MarkPauseAction classifies the upcoming pause. Call right before Paused;
// this does not set the paused flag itself.
func (m *Machine) MarkPauseAction(level int) {
	m.rec.PauseLevel = level
	m.rec.IsPauseExplicit = m.isDeliberatePause(level)
	m.rec.IsAdPauseExplicit = m.rec.IsAd && m.rec.IsPauseExplicit
}

func (m *Machine) Paused() {
	m.rec.Paused = true
}

// Timeupdate is the steady playback heartbeat. It resolves the ready and
// early-start stages and clears any pending pause bookkeeping once
// playback is observed to advance.
func (m *Machine) Timeupdate(position float64) {
	m.rec.ReloadingSrc = false
	m.rec.ReattachingVideo = false

	if m.rec.Stage == StageReady {
		m.rec.TitleStartTime = m.clock.Now().UnixMilli()
		m.setStage(StageEarlyStart)
		return
	}

	if !m.isEarlyStart() {
		return
	}

	if position-m.rec.ConvertPosition > float64(m.earlyStartGap) {
		m.setStage(StageInStream)
	}

	if m.rec.Paused {
		m.rec.Paused = false
		m.rec.IsPauseExplicit = false
		m.rec.PauseLevel = PauseLevelUnknown
		m.rec.IsAdPauseExplicit = false
	}
}

func (m *Machine) SetFeedback(issue string) {
	m.rec.Feedback = issue
}

func (m *Machine) ShowErrorModal() {
	m.rec.ErrorModalShown = true
}

func (m *Machine) HideErrorModal() {
	m.rec.ErrorModalShown = false
}

func (m *Machine) AdError(err error) {
	m.rec.LastAdError = err.Error()
	m.publishOnMidroll()
}

func (m *Machine) ContentError(err error) {
	m.rec.LastContentError = err.Error()
	m.publishOnMidroll()
}

// publishOnMidroll pushes a snapshot only while in a midroll-class stage,
// to capture ad-break error context.
func (m *Machine) publishOnMidroll() {
	if strings.Contains(m.rec.Stage.String(), "midroll") {
		m.publishSnapshot()
	}
}

func (m *Machine) AddViewTime(seconds float64) {
	m.rec.ViewTime += seconds
}

func (m *Machine) AddAdViewTime(seconds float64) {
	m.rec.AdViewTime += seconds
}

func (m *Machine) SetCause(cause Cause) {
	m.rec.Cause = &cause
}

func (m *Machine) SetDoubts(causes []Cause) {
	m.rec.Doubts = append([]Cause(nil), causes...)
}

func (m *Machine) ReloadSrc() {
	m.rec.ReloadingSrc = true
}

func (m *Machine) ReattachVideoElement() {
	m.rec.ReattachingVideo = true
}

func (m *Machine) UpdateHdmiConnectionStatus(status string) {
	m.rec.HdmiStatus = status
}

func (m *Machine) EnterEpisodeRegistrationGate() {
	m.rec.InRegistrationGate = true
}

func (m *Machine) EnterDrmFallback() {
	m.setStage(StageDrmFallback)
}

// EndVODSession notifies listeners that the session ended. The record is
// left untouched so exit diagnostics stay readable.
func (m *Machine) EndVODSession() {
	for _, l := range m.listeners {
		l.OnSessionEnded()
	}
}

// ResetVODPageSession restores defaults for a fresh page, preserving only
// the deep-link flag, and republishes the record.
func (m *Machine) ResetVODPageSession() {
	deeplink := m.rec.Deeplink
	m.rec = Snapshot{
		Stage:          StageNone,
		PlaybackSource: SourceUnknown,
		StartTime:      m.clock.Now().UnixMilli(),
		Deeplink:       deeplink,
	}
	m.publishSnapshot()
}

// IsContentPlaying reports whether main content is on screen.
func (m *Machine) IsContentPlaying() bool {
	return m.rec.Stage == StageEarlyStart || m.rec.Stage == StageInStream
}

// isEarlyStart covers the unstable window right after any ad-to-content
// convert, before the stream settles in-stream.
func (m *Machine) isEarlyStart() bool {
	switch m.rec.Stage {
	case StageEarlyStart, StageAfterPreroll, StageAfterMidroll:
		return true
	default:
		return false
	}
}
