package store

import (
	"path/filepath"
	"testing"
	"time"

	"rungchat/internal/transcript"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *History {
	t.Helper()
	h, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func TestRecordAndRecent(t *testing.T) {
	h := openTemp(t)
	base := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

	for i, text := range []string{"first", "second", "third"} {
		require.NoError(t, h.Record(Entry{
			ConversationID: "c1",
			MessageID:      text,
			Sender:         transcript.User,
			Kind:           transcript.KindText,
			Text:           text,
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		}))
	}

	got, err := h.Recent("", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "second", got[0].Text)
	assert.Equal(t, "third", got[1].Text)
	assert.True(t, got[1].CreatedAt.Equal(base.Add(2*time.Second)))
	assert.Nil(t, got[1].DurationSeconds)
}

func TestRecordIsIdempotent(t *testing.T) {
	h := openTemp(t)
	e := Entry{ConversationID: "c1", MessageID: "m1", Sender: transcript.Bot, Kind: transcript.KindCode,
		Text: "XIC A OTE B", DurationSeconds: transcript.Seconds(1.2), CreatedAt: time.Now()}
	require.NoError(t, h.Record(e))
	require.NoError(t, h.Record(e))

	got, err := h.Recent("c1", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].DurationSeconds)
	assert.InDelta(t, 1.2, *got[0].DurationSeconds, 1e-9)
	assert.Equal(t, transcript.KindCode, got[0].Kind)
}

func TestRecorderSkipsPlaceholdersAndSplitsOnClear(t *testing.T) {
	h := openTemp(t)
	log := transcript.NewLog()
	r := NewRecorder(h, log)
	defer r.Stop()

	first := r.ConversationID()
	log.Append(transcript.Message{Sender: transcript.User, Kind: transcript.KindText, Text: "hello"})
	id := log.AppendPlaceholder("Analyzing user intention...")
	log.Remove(id)
	log.Append(transcript.Message{Sender: transcript.Bot, Kind: transcript.KindText, Text: "hi"})

	log.Clear()
	second := r.ConversationID()
	assert.NotEqual(t, first, second)
	log.Append(transcript.Message{Sender: transcript.User, Kind: transcript.KindText, Text: "again"})

	got, err := h.Recent(first, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "hello", got[0].Text)
	assert.Equal(t, "hi", got[1].Text)

	convs, err := h.Conversations()
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, second, convs[0].ID)
	assert.Equal(t, 1, convs[0].Messages)
	assert.Equal(t, 2, convs[1].Messages)
}

func TestRecorderStop(t *testing.T) {
	h := openTemp(t)
	log := transcript.NewLog()
	r := NewRecorder(h, log)
	r.Stop()
	r.Stop()

	log.Append(transcript.Message{Sender: transcript.User, Kind: transcript.KindText, Text: "unrecorded"})
	got, err := h.Recent("", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOpenInMemory(t *testing.T) {
	h, err := Open(":memory:")
	require.NoError(t, err)
	defer h.Close()
	assert.Equal(t, ":memory:", h.Path())

	convs, err := h.Conversations()
	require.NoError(t, err)
	assert.Empty(t, convs)
}
