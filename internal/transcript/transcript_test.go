package transcript

import (
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedLog() *Log {
	l := NewLog()
	l.now = func() time.Time { return time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC) }
	return l
}

func TestAppendFillsIDAndTime(t *testing.T) {
	l := fixedLog()
	m := l.Append(Message{Sender: User, Kind: KindText, Text: "hello"})

	assert.NotEmpty(t, m.ID)
	assert.Equal(t, 2026, m.CreatedAt.Year())
	assert.True(t, l.Contains(m.ID))

	got, ok := l.Get(m.ID)
	require.True(t, ok)
	assert.Equal(t, m, got)
}

func TestDurationLabel(t *testing.T) {
	assert.Equal(t, "1.20s", Message{DurationSeconds: Seconds(1.2)}.DurationLabel())
	assert.Equal(t, "0.00s", Message{DurationSeconds: Seconds(0)}.DurationLabel())
	assert.Equal(t, "", Message{}.DurationLabel())
}

func TestPlaceholderLifecycle(t *testing.T) {
	l := fixedLog()
	user := l.Append(Message{Sender: User, Kind: KindText, Text: "q"})
	id := l.AppendPlaceholder("Analyzing user intention...")

	assert.True(t, l.UpdatePlaceholder(id, "Model thinking...."))
	m, _ := l.Get(id)
	assert.Equal(t, "Model thinking....", m.Text)

	assert.False(t, l.UpdatePlaceholder(user.ID, "edited"), "only loading messages change")
	assert.False(t, l.Remove(user.ID), "only loading messages are removed")

	assert.True(t, l.Remove(id))
	assert.False(t, l.Remove(id))
	assert.False(t, l.UpdatePlaceholder(id, "late"), "no update after removal")
	assert.Equal(t, 1, l.Len())
}

func TestEventsInOrder(t *testing.T) {
	l := fixedLog()
	var events []Event
	unsubscribe := l.Subscribe(func(ev Event) { events = append(events, ev) })

	id := l.AppendPlaceholder("a")
	l.UpdatePlaceholder(id, "b")
	l.Remove(id)
	bot := l.Append(Message{ID: "m1", Sender: Bot, Kind: KindText, Text: "done"})
	l.Touch(bot.ID)
	l.Clear()
	unsubscribe()
	l.Append(Message{Sender: Bot, Kind: KindText, Text: "unseen"})

	types := make([]EventType, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	want := []EventType{Appended, Updated, Removed, Appended, Updated, Cleared}
	if diff := cmp.Diff(want, types); diff != "" {
		t.Errorf("event order mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "b", events[1].Message.Text)
	assert.Equal(t, 1, l.Len())
}

func TestSubscriberCanReadLog(t *testing.T) {
	l := fixedLog()
	var seen int
	l.Subscribe(func(Event) { seen = l.Len() })

	l.Append(Message{Sender: User, Kind: KindText, Text: "x"})
	assert.Equal(t, 1, seen)
}

func TestSnapshotIsolation(t *testing.T) {
	l := fixedLog()
	l.Append(Message{Sender: User, Kind: KindText, Text: "one"})
	id := l.AppendPlaceholder("loading")
	snap := l.Messages()

	l.Remove(id)
	l.Append(Message{Sender: Bot, Kind: KindText, Text: "two"})

	want := []Message{
		{Sender: User, Kind: KindText, Text: "one"},
		{Sender: Bot, Kind: KindLoading, Text: "loading"},
	}
	opts := cmpopts.IgnoreFields(Message{}, "ID", "CreatedAt")
	if diff := cmp.Diff(want, snap, opts); diff != "" {
		t.Errorf("snapshot changed (-want +got):\n%s", diff)
	}
}

func TestConcurrentAppends(t *testing.T) {
	l := NewLog()
	var mu sync.Mutex
	count := 0
	l.Subscribe(func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := l.AppendPlaceholder("x")
			l.Remove(id)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, l.Len())
	assert.Equal(t, 100, count)
}
