package operations

import (
	"context"
	"sync"
	"time"

	"timeprep/internal/dedup"
	"timeprep/internal/sensor"
)

// Step is a single stage of the preparation pipeline.
type Step interface {
	// ID returns the unique identifier for this step.
	ID() string

	// Name returns the human-readable name for this step.
	Name() string

	// Validate checks whether the step can run against the current state.
	Validate(state *State) error

	// Execute runs the step, reading and writing shared run state.
	Execute(ctx context.Context, state *State) error
}

// StepStatus represents the current status of a step.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusActive    StepStatus = "active"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// StepState is the runtime state of one step.
type StepState struct {
	mu        sync.RWMutex
	ID        string
	Name      string
	Status    StepStatus
	StartTime *time.Time
	EndTime   *time.Time
	Err       error
}

// NewStepState creates a pending step state.
func NewStepState(id, name string) *StepState {
	return &StepState{ID: id, Name: name, Status: StepStatusPending}
}

// Start marks the step active.
func (s *StepState) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.StartTime = &now
	s.Status = StepStatusActive
}

// Complete marks the step completed.
func (s *StepState) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.EndTime = &now
	s.Status = StepStatusCompleted
}

// Fail marks the step failed with err.
func (s *StepState) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.EndTime = &now
	s.Status = StepStatusFailed
	s.Err = err
}

// Skip marks the step skipped.
func (s *StepState) Skip() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = StepStatusSkipped
}

// CurrentStatus returns the status under the read lock.
func (s *StepState) CurrentStatus() StepStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Status
}

// FileFailure records a per-file error that stopped processing of that file
// but not of the run.
type FileFailure struct {
	Step string
	Path string
	Err  error
}

// State is the shared mutable state of one pipeline run.
type State struct {
	RunID   string
	Month   string
	Streams []sensor.Stream

	mu    sync.RWMutex
	steps map[string]*StepState

	// DiscoveredPaths are the raw export files found for this run.
	DiscoveredPaths []string
	// StagedPaths are the staging-tree copies, populated by the stage step.
	StagedPaths []string
	// CombinedFiles maps each stream to its combined partition files.
	CombinedFiles map[sensor.Stream][]string
	// Shards maps each stream to its final size-bounded output files.
	Shards map[sensor.Stream][]string
	// CountsByPath holds the classification counts per staged file.
	CountsByPath map[string]dedup.Counts

	failures []FileFailure
}

// NewState creates run state for the given identity.
func NewState(runID, month string, streams []sensor.Stream) *State {
	return &State{
		RunID:         runID,
		Month:         month,
		Streams:       streams,
		steps:         make(map[string]*StepState),
		CombinedFiles: make(map[sensor.Stream][]string),
		Shards:        make(map[sensor.Stream][]string),
		CountsByPath:  make(map[string]dedup.Counts),
	}
}

// StepState returns (creating if needed) the state for a step ID.
func (s *State) StepState(id, name string) *StepState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.steps[id]; ok {
		return st
	}
	st := NewStepState(id, name)
	s.steps[id] = st
	return st
}

// AddFailure records a per-file failure.
func (s *State) AddFailure(f FileFailure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, f)
}

// Failures returns a copy of the recorded per-file failures.
func (s *State) Failures() []FileFailure {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]FileFailure, len(s.failures))
	copy(out, s.failures)
	return out
}

// SetCombined stores combined files for a stream.
func (s *State) SetCombined(stream sensor.Stream, files []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CombinedFiles[stream] = files
}

// Combined returns combined files for a stream.
func (s *State) Combined(stream sensor.Stream) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.CombinedFiles[stream]
}

// SetShards stores final shards for a stream.
func (s *State) SetShards(stream sensor.Stream, files []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Shards[stream] = files
}

// SetCounts stores classification counts for a staged path.
func (s *State) SetCounts(path string, c dedup.Counts) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CountsByPath[path] = c
}
