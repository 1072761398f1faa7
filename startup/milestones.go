package startup

import (
	playsight "github.com/playsight/go-playsight"
)

// Milestone identifies a once-per-run lifecycle point between page request
// and first rendered frame.
type Milestone int

const (
	MilestonePageRequested Milestone = iota
	MilestoneMediaAttaching
	MilestonePlayerSetup
	MilestoneAdPodFetch
	MilestoneAdPodFetchSuccess
	MilestoneStartLoad
	MilestoneSeeking
	MilestoneManifestLoading
	MilestoneManifestLoaded
	MilestoneLevelLoaded
	MilestoneFragLoading
	MilestoneFragLoaded
	MilestoneFragBuffered
	MilestoneFirstFrame
)

// Short fixed-width codes keyed into the final report.
var milestoneCodes = map[Milestone]string{
	MilestonePageRequested:     "pge_req",
	MilestoneMediaAttaching:    "med_att",
	MilestonePlayerSetup:       "plr_stp",
	MilestoneAdPodFetch:        "adp_req",
	MilestoneAdPodFetchSuccess: "adp_suc",
	MilestoneStartLoad:         "str_lod",
	MilestoneSeeking:           "plr_sek",
	MilestoneManifestLoading:   "man_req",
	MilestoneManifestLoaded:    "man_lod",
	MilestoneLevelLoaded:       "lvl_lod",
	MilestoneFragLoading:       "frg_req",
	MilestoneFragLoaded:        "frg_lod",
	MilestoneFragBuffered:      "frg_buf",
	MilestoneFirstFrame:        "fst_frm",
}

func (m Milestone) Code() string {
	if code, ok := milestoneCodes[m]; ok {
		return code
	}
	return "unknown"
}

type milestoneBinding struct {
	milestone   Milestone
	sourceEvent string
}

// Milestone events on the player emitter. Structural events (engine
// attaching, ad/content ready, terminals, removal) are wired separately.
var playerMilestones = []milestoneBinding{
	{MilestoneMediaAttaching, playsight.EventMediaAttaching},
	{MilestonePlayerSetup, playsight.EventPlayerSetup},
	{MilestoneAdPodFetch, playsight.EventAdPodFetch},
	{MilestoneAdPodFetchSuccess, playsight.EventAdPodFetchSuccess},
	{MilestoneStartLoad, playsight.EventStartLoad},
	{MilestoneSeeking, playsight.EventSeeking},
}

// Milestone events on the sub-engine emitter, only wired once the player
// announces the engine is attaching.
var subEngineMilestones = []milestoneBinding{
	{MilestoneManifestLoading, playsight.EventManifestLoading},
	{MilestoneManifestLoaded, playsight.EventManifestLoaded},
	{MilestoneLevelLoaded, playsight.EventLevelLoaded},
	{MilestoneFragLoading, playsight.EventFragLoading},
	{MilestoneFragLoaded, playsight.EventFragLoaded},
	{MilestoneFragBuffered, playsight.EventFragBuffered},
}
