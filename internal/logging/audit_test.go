package logging

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func auditPath(dir string) string {
	return filepath.Join(dir, time.Now().Format("2006-01-02")+"_audit.jsonl")
}

func readAudit(t *testing.T, dir string) []AuditEvent {
	t.Helper()
	f, err := os.Open(auditPath(dir))
	require.NoError(t, err)
	defer f.Close()

	var events []AuditEvent
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e AuditEvent
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		events = append(events, e)
	}
	require.NoError(t, sc.Err())
	return events
}

func TestAuditWritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Initialize(Options{Dir: dir, DebugMode: true}))
	t.Cleanup(CloseAll)

	Audit().RequestStart("chat")
	Audit().RequestEnd("chat", "failure", 1500*time.Millisecond, errors.New("model unavailable"))
	Audit().ConfirmPresented("c-1", "intention", 2)
	Audit().ConfirmResolved("c-1", "create a new rung")
	CloseAll()

	events := readAudit(t, dir)
	require.Len(t, events, 4)
	assert.Equal(t, AuditRequestStart, events[0].EventType)
	assert.Equal(t, "chat", events[1].Endpoint)
	assert.Equal(t, "failure", events[1].Outcome)
	assert.False(t, events[1].Success)
	assert.Equal(t, int64(1500), events[1].DurationMs)
	assert.Equal(t, "model unavailable", events[1].Error)
	assert.Equal(t, "c-1", events[2].Target)
	assert.EqualValues(t, 2, events[2].Fields["options"])
	assert.Equal(t, "create a new rung", events[3].Fields["action"])
	assert.NotZero(t, events[3].Timestamp)
}

func TestAuditSilentInProductionMode(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Initialize(Options{Dir: dir}))
	t.Cleanup(CloseAll)

	Audit().TranscriptClear(3)
	_, err := os.Stat(auditPath(dir))
	assert.True(t, os.IsNotExist(err))
}
