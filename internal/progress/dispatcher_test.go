package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// recordingPropagator implements both collaborator interfaces.
type recordingPropagator struct {
	mu       sync.Mutex
	updates  []string
	attempts []AttemptSummary
	fail     bool
}

func (p *recordingPropagator) Update(_ context.Context, userID, caseID, recordID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("collaborator down")
	}
	p.updates = append(p.updates, userID+"/"+caseID+"/"+recordID)
	return nil
}

func (p *recordingPropagator) RecordAttempt(_ context.Context, _ string, attempt AttemptSummary) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("collaborator down")
	}
	p.attempts = append(p.attempts, attempt)
	return nil
}

func (p *recordingPropagator) counts() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.updates), len(p.attempts)
}

func notification(session string) Notification {
	return Notification{
		UserID: "trainee-1",
		CaseID: "case-1",
		Attempt: AttemptSummary{
			CaseID:        "case-1",
			SessionID:     session,
			RecordID:      "rec-" + session,
			AttemptNumber: 1,
			EvaluatedAt:   time.Now(),
		},
	}
}

func TestDispatcherFansOutToBothCollaborators(t *testing.T) {
	p := &recordingPropagator{}
	d := NewDispatcher(p, p, nil, nil)

	d.Notify(notification("ses-1"))
	d.Notify(notification("ses-2"))
	d.Close()

	updates, attempts := p.counts()
	if updates != 2 || attempts != 2 {
		t.Errorf("updates = %d, attempts = %d, want 2 each", updates, attempts)
	}
}

func TestDispatcherCloseDrainsQueue(t *testing.T) {
	p := &recordingPropagator{}
	d := NewDispatcher(p, p, nil, nil)

	for i := 0; i < 10; i++ {
		d.Notify(notification("ses"))
	}
	d.Close()

	updates, attempts := p.counts()
	if updates != 10 || attempts != 10 {
		t.Errorf("updates = %d, attempts = %d, want 10 each", updates, attempts)
	}
}

func TestDispatcherFailureDoesNotStopOtherCollaborator(t *testing.T) {
	failing := &recordingPropagator{fail: true}
	healthy := &recordingPropagator{}
	d := NewDispatcher(failing, healthy, nil, nil)

	d.Notify(notification("ses-1"))
	d.Close()

	_, attempts := healthy.counts()
	if attempts != 1 {
		t.Errorf("healthy collaborator got %d attempts, want 1", attempts)
	}
}

func TestNotifyAfterCloseIsNoop(t *testing.T) {
	p := &recordingPropagator{}
	d := NewDispatcher(p, p, nil, nil)
	d.Close()

	// Must neither panic nor deliver.
	d.Notify(notification("ses-late"))

	updates, attempts := p.counts()
	if updates != 0 || attempts != 0 {
		t.Errorf("updates = %d, attempts = %d after close", updates, attempts)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	d := NewDispatcher(nil, nil, nil, nil)
	d.Close()
	d.Close()
}

func TestDispatcherNilCollaborators(t *testing.T) {
	d := NewDispatcher(nil, nil, nil, nil)
	d.Notify(notification("ses-1"))
	d.Close()
}
