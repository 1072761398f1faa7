package livequality

// State is the ordinal loading state of a live playback attempt. Everything
// up to and including StateFirstFrameViewed is an irreversible prefix:
// once reached, those states are never regressed. StatePlaying and
// StateBuffering oscillate freely after the first frame.
type State int

const (
	StateCreated           State = 0
	StateManifestStartLoad State = 5
	StateManifestLoaded    State = 10
	StateLevelStartLoad    State = 15
	StateLevelLoaded       State = 20
	StateFragStartLoad     State = 25
	StateFragLoaded        State = 30
	StateFragBuffered      State = 35
	StateFirstFrameViewed  State = 40
	StatePlaying           State = 45
	StateBuffering         State = 60
)

var stateNames = map[State]string{
	StateCreated:           "created",
	StateManifestStartLoad: "manifest_start_load",
	StateManifestLoaded:    "manifest_loaded",
	StateLevelStartLoad:    "level_start_load",
	StateLevelLoaded:       "level_loaded",
	StateFragStartLoad:     "first_frag_start_load",
	StateFragLoaded:        "first_frag_loaded",
	StateFragBuffered:      "first_frag_buffered",
	StateFirstFrameViewed:  "first_frame_viewed",
	StatePlaying:           "playing",
	StateBuffering:         "buffering",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
