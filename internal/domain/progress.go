package domain

// Step names one of the three reported pipeline milestones.
type Step string

const (
	StepVideo  Step = "video"
	StepAudio  Step = "audio"
	StepRecipe Step = "recipe"
)

// ProgressState tracks the milestones. A nil field means unstarted.
type ProgressState struct {
	VideoDownloaded  *bool `json:"videoDownloaded"`
	AudioTranscribed *bool `json:"audioTranscribed"`
	RecipeCreated    *bool `json:"recipeCreated"`
}

// Get returns the milestone value for step.
func (p ProgressState) Get(step Step) *bool {
	switch step {
	case StepVideo:
		return p.VideoDownloaded
	case StepAudio:
		return p.AudioTranscribed
	case StepRecipe:
		return p.RecipeCreated
	}
	return nil
}

// Clone returns a deep copy so snapshots stay stable while the pipeline
// keeps mutating its own state.
func (p ProgressState) Clone() ProgressState {
	return ProgressState{
		VideoDownloaded:  cloneBool(p.VideoDownloaded),
		AudioTranscribed: cloneBool(p.AudioTranscribed),
		RecipeCreated:    cloneBool(p.RecipeCreated),
	}
}

func cloneBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}

// LogEntry is one line of the ordered pipeline log.
type LogEntry struct {
	Step    Step   `json:"step"`
	OK      *bool  `json:"ok"`
	Message string `json:"message"`
	TS      int64  `json:"ts"`
}

// ProgressEvent is a single frame of the produced event stream.
// Exactly one of the optional payload fields is set on terminal frames.
type ProgressEvent struct {
	Progress  *ProgressState `json:"progress,omitempty"`
	Logs      []LogEntry     `json:"logs,omitempty"`
	Error     string         `json:"error,omitempty"`
	Recipe    *RecipeSummary `json:"recipe,omitempty"`
	Duplicate bool           `json:"duplicate,omitempty"`
}
