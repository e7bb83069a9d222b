package types

type MomentOrigin string

const (
	OriginEngine    MomentOrigin = "engine"
	OriginHeuristic MomentOrigin = "heuristic"
)

// HeuristicReason prefixes the reason of every fallback moment.
const HeuristicReason = "heuristic fallback"

type CandidateMoment struct {
	Start  float64      `json:"startTime"`
	End    float64      `json:"endTime"`
	Score  float64      `json:"viralScore"`
	Reason string       `json:"reason"`
	Title  string       `json:"title,omitempty"`
	Hook   string       `json:"hook,omitempty"`
	Origin MomentOrigin `json:"origin"`
}

func (c CandidateMoment) Length() float64 { return c.End - c.Start }

func (c CandidateMoment) Mid() float64 { return (c.Start + c.End) / 2 }

type SelectedMoment struct {
	CandidateMoment
	Rank                 int  `json:"rank"`
	ShorterThanRequested bool `json:"shorterThanRequested,omitempty"`
}

// EnginePrompt is one transcript chunk handed to the scoring engine.
type EnginePrompt struct {
	Digest        string
	ChunkIndex    int
	ChunkCount    int
	MediaDuration float64
	ClipCount     int
	Duration      ClipDuration
	AspectRatio   AspectRatio
}
