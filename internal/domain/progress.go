package domain

// Stage names the pipeline step currently running.
type Stage string

const (
	StagePending    Stage = "pending"
	StageExtracting Stage = "extracting"
	StageConverting Stage = "converting"
	StageMetadata   Stage = "attaching_metadata"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// Progress is a point-in-time view of a conversion run.
type Progress struct {
	Stage         Stage  `json:"stage"`
	HousesTotal   int    `json:"houses_total"`
	HousesDone    int    `json:"houses_done"`
	TablesWritten int    `json:"tables_written"`
	Error         string `json:"error,omitempty"`
}
