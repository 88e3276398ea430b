package testsupport

import (
	"context"
	"fmt"
	"sync"
)

// RecordingNotifier captures notifications as short strings such as
// "synced s1/9 picked" so tests can assert on order and content.
type RecordingNotifier struct {
	mu     sync.Mutex
	events []string
}

// Events returns a copy of everything recorded so far.
func (r *RecordingNotifier) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *RecordingNotifier) record(format string, args ...any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
	return nil
}

func (r *RecordingNotifier) NotifySessionCreated(_ context.Context, sessionID, pickerID string, orderCount int) error {
	return r.record("created %s %s %d", sessionID, pickerID, orderCount)
}

func (r *RecordingNotifier) NotifySessionClosed(_ context.Context, sessionID, pickerID, status string) error {
	return r.record("closed %s %s %s", sessionID, pickerID, status)
}

func (r *RecordingNotifier) NotifyItemOverride(_ context.Context, sessionID, productID, action, actor string) error {
	return r.record("override %s/%s %s %s", sessionID, productID, action, actor)
}

func (r *RecordingNotifier) NotifyActionSynced(_ context.Context, sessionID, productID, kind string) error {
	return r.record("synced %s/%s %s", sessionID, productID, kind)
}

func (r *RecordingNotifier) NotifyDeadLetter(_ context.Context, sessionID, productID string, status int, _ string) error {
	return r.record("dead-letter %s/%s %d", sessionID, productID, status)
}

func (r *RecordingNotifier) NotifyLocalReset(_ context.Context, pickerID string, dropped int) error {
	return r.record("reset %s %d", pickerID, dropped)
}

func (r *RecordingNotifier) TestNotification(context.Context) error {
	return r.record("test")
}
