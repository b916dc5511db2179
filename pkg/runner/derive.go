package runner

import (
	"slices"

	"github.com/a-kuz/shader-maker/pkg/models"
)

// Everything in this file derives pipeline facts from a process's
// persisted step history. Nothing is cached in memory: any runner
// instance, including one started after a crash, computes the same
// answers from the same rows.

// latestCode returns the output of the most recently started completed
// code-producing step. A fix or improvement started after the original
// generation therefore supersedes it.
func latestCode(process *models.Process) (string, bool) {
	step := newestCompleted(process, models.CodeStepKinds)
	if step == nil {
		return "", false
	}
	return step.Output.Code, true
}

// latestCapture returns the most recently started completed capture step.
func latestCapture(process *models.Process) *models.Step {
	return newestCompleted(process, []models.StepKind{models.StepKindCapture})
}

// latestEvaluation returns the most recently started completed
// evaluation step.
func latestEvaluation(process *models.Process) *models.Step {
	return newestCompleted(process, []models.StepKind{models.StepKindEvaluation})
}

// iterationCount is the number of completed improvement steps. It is
// never stored; counting rows keeps it consistent by construction.
func iterationCount(process *models.Process) int {
	count := 0
	for _, step := range process.Steps {
		if step.Kind == models.StepKindImprovement && step.Status == models.StepStatusCompleted {
			count++
		}
	}
	return count
}

// bestCode returns the code associated with the highest-scoring
// evaluation, falling back to the latest code when no evaluation carries
// an input snapshot.
func bestCode(process *models.Process) string {
	var best *models.Step
	for _, step := range process.Steps {
		if step.Kind != models.StepKindEvaluation || step.Status != models.StepStatusCompleted {
			continue
		}
		if step.Input.Code == "" || step.Output.Score == nil {
			continue
		}
		if best == nil || *step.Output.Score > *best.Output.Score {
			best = step
		}
	}
	if best != nil {
		return best.Input.Code
	}

	code, _ := latestCode(process)
	return code
}

// newestCompletedDriving returns the most recently started completed
// driving step, the anchor for deriving the next transition.
func newestCompletedDriving(process *models.Process) *models.Step {
	return newestCompleted(process, models.DrivingStepKinds)
}

func newestCompleted(process *models.Process, kinds []models.StepKind) *models.Step {
	var newest *models.Step
	for _, step := range process.Steps {
		if step.Status != models.StepStatusCompleted {
			continue
		}
		if !slices.Contains(kinds, step.Kind) {
			continue
		}
		if newest == nil || step.StartedAt.After(newest.StartedAt) {
			newest = step
		}
	}
	return newest
}
