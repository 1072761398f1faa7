package session

// Stage is the coarse lifecycle stage of the current page's watch session.
type Stage int

const (
	StageNone Stage = iota
	StageIdle
	StageEmptyPreroll
	StageReady
	StageBeforePreroll
	StagePreroll
	StageAfterPreroll
	StageEarlyStart
	StageInStream
	StageBeforeMidroll
	StageMidroll
	StageAfterMidroll
	StageDrmFallback
)

var stageNames = map[Stage]string{
	StageNone:          "none",
	StageIdle:          "idle",
	StageEmptyPreroll:  "empty_preroll",
	StageReady:         "ready",
	StageBeforePreroll: "before_preroll",
	StagePreroll:       "preroll",
	StageAfterPreroll:  "after_preroll",
	StageEarlyStart:    "early_start",
	StageInStream:      "in_stream",
	StageBeforeMidroll: "before_midroll",
	StageMidroll:       "midroll",
	StageAfterMidroll:  "after_midroll",
	StageDrmFallback:   "drm_fallback",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Stage) UnmarshalText(text []byte) error {
	for stage, name := range stageNames {
		if name == string(text) {
			*s = stage
			return nil
		}
	}

	*s = StageNone
	return nil
}
