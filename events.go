package go_playsight

// Canonical event names on the player emitter. The adapter layer maps
// whatever the concrete player calls these to this vocabulary.
const (
	EventMediaAttaching    = "media_attaching"
	EventPlayerSetup       = "player_setup"
	EventAdPodFetch        = "ad_pod_fetch"
	EventAdPodFetchSuccess = "ad_pod_fetch_success"
	EventStartLoad         = "start_load"
	EventSeeking           = "seeking"

	EventEngineAttaching = "engine_attaching"
	EventAdReady         = "ad_ready"
	EventContentReady    = "content_ready"
	EventPlayerRemoved   = "player_removed"

	EventAdTimeProgressed = "ad_current_time_progressed"
	EventTimeProgressed   = "current_time_progressed"

	EventFirstFrame  = "first_frame"
	EventBufferStart = "buffer_start"
	EventBufferEnd   = "buffer_end"
)

// Session trigger events on the player emitter, forwarded by the page
// shell. Payloads are flat JSON objects.
const (
	EventEnterPage        = "enter_page"
	EventPlayerReady      = "player_ready"
	EventCuePointFilled   = "cue_point_filled"
	EventAdPodEmpty       = "ad_pod_empty"
	EventAdPodStart       = "ad_pod_start"
	EventAdStart          = "ad_start"
	EventAdStall          = "ad_stall"
	EventContentStart     = "content_start"
	EventPauseAction      = "pause_action"
	EventPaused           = "paused"
	EventTimeupdate       = "timeupdate"
	EventFeedback         = "feedback"
	EventShowErrorModal   = "show_error_modal"
	EventHideErrorModal   = "hide_error_modal"
	EventAdError          = "ad_error"
	EventContentError     = "content_error"
	EventViewTime         = "view_time"
	EventAdViewTime       = "ad_view_time"
	EventExitCause        = "exit_cause"
	EventExitDoubts       = "exit_doubts"
	EventReloadSrc        = "reload_src"
	EventReattachVideo    = "reattach_video"
	EventHdmiStatus       = "hdmi_status"
	EventRegistrationGate = "registration_gate"
	EventDrmFallback      = "drm_fallback"
	EventSessionEnd       = "session_end"
	EventSessionReset     = "session_reset"

	EventPageRequested    = "page_requested"
	EventLiveSessionStart = "live_session_start"
	EventLiveSessionEnd   = "live_session_end"
)

// Event names on the sub-engine emitter (load lifecycle of the HLS-like
// engine). Only announced once the player fires EventEngineAttaching.
const (
	EventManifestLoading = "manifest_loading"
	EventManifestLoaded  = "manifest_loaded"
	EventLevelLoading    = "level_loading"
	EventLevelLoaded     = "level_loaded"
	EventFragLoading     = "frag_loading"
	EventFragLoaded      = "frag_loaded"
	EventFragBuffered    = "frag_buffered"
)
