package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrStaleCheckpoint marks a checkpoint left behind by a run targeting a
// different tag. It is never resumed silently; the operator clears it.
var ErrStaleCheckpoint = errors.New("checkpoint belongs to a different release")

// Step is one transition of the publish state machine.
type Step string

const (
	StepPersist   Step = "persist"
	StepTag       Step = "tag"
	StepChangelog Step = "changelog"
	StepPush      Step = "push"
	StepPublish   Step = "publish"
)

// stepOrder is the strict publish sequence; each step is gated on the
// success of the previous one.
var stepOrder = []Step{StepPersist, StepTag, StepChangelog, StepPush, StepPublish}

func stepIndex(s Step) int {
	for i, step := range stepOrder {
		if step == s {
			return i
		}
	}
	return -1
}

// Checkpoint records the last completed step of a run so a failed run can
// be diagnosed and resumed.
type Checkpoint struct {
	RunID    string `json:"run_id"`
	Branch   string `json:"branch"`
	Tag      string `json:"tag"`
	LastStep Step   `json:"last_step"`
	// TagBefore is the plan's lower bound, kept so a re-run can rebuild
	// the interrupted plan after the descriptor was already bumped.
	TagBefore string    `json:"tag_before,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Completed reports whether the checkpoint covers s.
func (c *Checkpoint) Completed(s Step) bool {
	if c == nil || c.LastStep == "" {
		return false
	}
	return stepIndex(c.LastStep) >= stepIndex(s)
}

func checkpointPath(stateDir string) string {
	return filepath.Join(stateDir, "checkpoint.json")
}

// LoadCheckpoint reads the checkpoint under stateDir. No checkpoint means
// a fresh run and returns nil.
func LoadCheckpoint(stateDir string) (*Checkpoint, error) {
	data, err := os.ReadFile(checkpointPath(stateDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("load checkpoint: unmarshal: %w", err)
	}
	return &cp, nil
}

// SaveCheckpoint atomically writes the checkpoint under stateDir.
func SaveCheckpoint(stateDir string, cp Checkpoint) error {
	cp.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("save checkpoint: marshal: %w", err)
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("save checkpoint: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(stateDir, ".checkpoint-tmp-*")
	if err != nil {
		return fmt.Errorf("save checkpoint: tmpfile: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("save checkpoint: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("save checkpoint: close: %w", err)
	}
	if err := os.Rename(tmpName, checkpointPath(stateDir)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("save checkpoint: rename: %w", err)
	}
	return nil
}

// ClearCheckpoint removes the checkpoint. Missing is not an error.
func ClearCheckpoint(stateDir string) error {
	if err := os.Remove(checkpointPath(stateDir)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	return nil
}
