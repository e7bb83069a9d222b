package types

import "time"

type Stage string

const (
	StageQueued       Stage = "Queued"
	StageAcquiring    Stage = "Acquiring"
	StageTranscribing Stage = "Transcribing"
	StageDetecting    Stage = "Detecting"
	StageSelecting    Stage = "Selecting"
	StageRendering    Stage = "Rendering"
	StagePublishing   Stage = "Publishing"
	StageCompleted    Stage = "Completed"
	StageFailed       Stage = "Failed"
)

var stageOrder = map[Stage]int{
	StageQueued:       0,
	StageAcquiring:    1,
	StageTranscribing: 2,
	StageDetecting:    3,
	StageSelecting:    4,
	StageRendering:    5,
	StagePublishing:   6,
	StageCompleted:    7,
	StageFailed:       7,
}

// Order is the stage's position in the run lifecycle.
func (s Stage) Order() int { return stageOrder[s] }

func (s Stage) Terminal() bool { return s == StageCompleted || s == StageFailed }

type ClipFailure struct {
	Index    int           `json:"index"`
	Category ErrorCategory `json:"category"`
	Message  string        `json:"message"`
}

type RunView struct {
	RunID         string          `json:"runId"`
	OwnerID       string          `json:"ownerId"`
	Stage         Stage           `json:"stage"`
	Percent       int             `json:"percent"`
	Requested     int             `json:"requested"`
	Clips         []GeneratedClip `json:"clips"`
	ClipFailures  []ClipFailure   `json:"clipFailures,omitempty"`
	ErrorCategory ErrorCategory   `json:"errorCategory,omitempty"`
	Error         string          `json:"error,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}
