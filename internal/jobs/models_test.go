package jobs_test

import (
	"errors"
	"testing"

	"strata/internal/jobs"
)

func TestParseJobStatusNormalizes(t *testing.T) {
	cases := []struct {
		input string
		want  jobs.JobStatus
		ok    bool
	}{
		{"running", jobs.JobRunning, true},
		{" Running ", jobs.JobRunning, true},
		{"RUNNING_WITH_ERRORS", jobs.JobRunningWithErrors, true},
		{"complete_with_errors", jobs.JobCompleteWithErrors, true},
		{"", "", false},
		{"sideways", "", false},
	}
	for _, tc := range cases {
		got, ok := jobs.ParseJobStatus(tc.input)
		if ok != tc.ok {
			t.Fatalf("ParseJobStatus(%q): expected ok=%v, got %v", tc.input, tc.ok, ok)
		}
		if ok && got != tc.want {
			t.Fatalf("ParseJobStatus(%q): expected %s, got %s", tc.input, tc.want, got)
		}
	}
}

func TestJobStatusTerminal(t *testing.T) {
	terminal := []jobs.JobStatus{jobs.JobSuccessful, jobs.JobCompleteWithErrors, jobs.JobFailed, jobs.JobCanceled}
	for _, status := range terminal {
		if !status.IsTerminal() {
			t.Fatalf("expected %s terminal", status)
		}
	}
	for _, status := range []jobs.JobStatus{jobs.JobAccepted, jobs.JobPreviewing, jobs.JobRunning, jobs.JobRunningWithErrors, jobs.JobPaused} {
		if status.IsTerminal() {
			t.Fatalf("expected %s non-terminal", status)
		}
	}
}

func TestPauseOnlyFromRunning(t *testing.T) {
	job := &jobs.Job{Status: jobs.JobRunning}
	if err := job.Pause(); err != nil {
		t.Fatalf("Pause from running: %v", err)
	}
	if job.Status != jobs.JobPaused {
		t.Fatalf("expected paused, got %s", job.Status)
	}

	job.Status = jobs.JobSuccessful
	err := job.Pause()
	if !jobs.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err.Error() != "Job status cannot be updated from successful to paused." {
		t.Fatalf("unexpected message: %q", err.Error())
	}
	if job.Status != jobs.JobSuccessful {
		t.Fatalf("failed guard must not change status, got %s", job.Status)
	}
}

func TestResumeOnlyFromPaused(t *testing.T) {
	job := &jobs.Job{Status: jobs.JobPaused}
	if err := job.Resume(); err != nil {
		t.Fatalf("Resume from paused: %v", err)
	}
	if job.Status != jobs.JobRunning {
		t.Fatalf("expected running, got %s", job.Status)
	}

	job.Status = jobs.JobRunning
	err := job.Resume()
	if !jobs.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err.Error() != "Job status is running - only paused jobs can be resumed." {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestCancelFromNonTerminalOnly(t *testing.T) {
	for _, status := range []jobs.JobStatus{jobs.JobAccepted, jobs.JobPreviewing, jobs.JobRunning, jobs.JobRunningWithErrors, jobs.JobPaused} {
		job := &jobs.Job{Status: status}
		if err := job.Cancel(); err != nil {
			t.Fatalf("Cancel from %s: %v", status, err)
		}
		if job.Status != jobs.JobCanceled {
			t.Fatalf("expected canceled from %s, got %s", status, job.Status)
		}
	}

	job := &jobs.Job{Status: jobs.JobFailed}
	err := job.Cancel()
	if !jobs.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err.Error() != "Job status cannot be updated from failed to canceled." {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestSkipPreviewBeforeProcessingOnly(t *testing.T) {
	for _, status := range []jobs.JobStatus{jobs.JobAccepted, jobs.JobPreviewing} {
		job := &jobs.Job{Status: status}
		if err := job.SkipPreview(); err != nil {
			t.Fatalf("SkipPreview from %s: %v", status, err)
		}
		if job.Status != jobs.JobRunning {
			t.Fatalf("expected running from %s, got %s", status, job.Status)
		}
	}

	job := &jobs.Job{Status: jobs.JobPaused}
	err := job.SkipPreview()
	if !jobs.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err.Error() != "Job status cannot be updated from paused to running." {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestConflictErrorCarriesStatuses(t *testing.T) {
	job := &jobs.Job{Status: jobs.JobCanceled}
	err := job.Resume()
	var conflict *jobs.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected *ConflictError, got %T", err)
	}
	if conflict.Requested != jobs.JobRunning || conflict.Actual != jobs.JobCanceled {
		t.Fatalf("unexpected conflict payload: %+v", conflict)
	}
}

func TestSetProgressBounds(t *testing.T) {
	job := &jobs.Job{}
	if err := job.SetProgress(42.5); err != nil {
		t.Fatalf("SetProgress(42.5): %v", err)
	}
	if job.Progress != 42.5 {
		t.Fatalf("expected 42.5, got %g", job.Progress)
	}
	if err := job.SetProgress(-1); !jobs.IsValidation(err) {
		t.Fatalf("expected validation error for -1, got %v", err)
	}
	if err := job.SetProgress(100.5); !jobs.IsValidation(err) {
		t.Fatalf("expected validation error for 100.5, got %v", err)
	}
	if job.Progress != 42.5 {
		t.Fatalf("rejected progress must not stick, got %g", job.Progress)
	}
}

func TestEffectivePreviewThreshold(t *testing.T) {
	job := &jobs.Job{}
	if got := job.EffectivePreviewThreshold(500); got != 500 {
		t.Fatalf("expected configured default 500, got %d", got)
	}
	job.PreviewThreshold = 10
	if got := job.EffectivePreviewThreshold(500); got != 10 {
		t.Fatalf("expected job override 10, got %d", got)
	}
}
