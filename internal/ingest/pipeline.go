package ingest

import (
	"context"
	"fmt"
)

// Step is a single stage in a family's ingestion pipeline.
type Step interface {
	Execute(ctx context.Context, state *RunState) error
}

// RunState holds the shared state across pipeline steps. Each step appends
// its stage summary; the merged result is what the run reports.
type RunState struct {
	Family    Family
	Summaries []*RunSummary
}

// Summary merges the per-stage summaries into one.
func (s *RunState) Summary() *RunSummary {
	merged := &RunSummary{Family: s.Family}
	for _, part := range s.Summaries {
		merged.Fetched += part.Fetched
		merged.Parsed += part.Parsed
		merged.Loaded += part.Loaded
		merged.Skipped += part.Skipped
		merged.Failed += part.Failed
		merged.Messages = append(merged.Messages, part.Messages...)
	}
	return merged
}

// ExtractStep fetches new bank emails into the raw staging area.
type ExtractStep struct {
	Runner *Runner
}

func (s *ExtractStep) Execute(ctx context.Context, state *RunState) error {
	summary, err := s.Runner.ExtractBankEmails(ctx)
	state.Summaries = append(state.Summaries, summary)
	return err
}

// TransformStep normalizes raw artifacts into staged records.
type TransformStep struct {
	Runner *Runner
}

func (s *TransformStep) Execute(ctx context.Context, state *RunState) error {
	summary, err := s.Runner.Transform(ctx, state.Family)
	state.Summaries = append(state.Summaries, summary)
	return err
}

// LoadStep loads staged records into the warehouse idempotently.
type LoadStep struct {
	Runner *Runner
}

func (s *LoadStep) Execute(ctx context.Context, state *RunState) error {
	summary, err := s.Runner.Load(ctx, state.Family)
	state.Summaries = append(state.Summaries, summary)
	return err
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []Step
}

// NewPipeline creates a pipeline with the given steps.
func NewPipeline(steps ...Step) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially, stopping at the first stage-level
// failure. Per-document and per-row failures do not stop the pipeline; they
// are already absorbed into the stage summaries.
func (p *Pipeline) Execute(ctx context.Context, state *RunState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// NewFamilyPipeline composes the standard stages for a family. Bank emails
// are the only family fetched here; receipts and settlement reports arrive
// in the raw area through their own channels and enter at transform.
func NewFamilyPipeline(r *Runner, family Family) *Pipeline {
	if family == FamilyBankEmail {
		return NewPipeline(
			&ExtractStep{Runner: r},
			&TransformStep{Runner: r},
			&LoadStep{Runner: r},
		)
	}
	return NewPipeline(
		&TransformStep{Runner: r},
		&LoadStep{Runner: r},
	)
}
