package dispatch

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"rungchat/internal/backend"
	"rungchat/internal/logging"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestAuditTrailFollowsConfirmation(t *testing.T) {
	logs := t.TempDir()
	require.NoError(t, logging.Initialize(logging.Options{Dir: logs, DebugMode: true}))
	t.Cleanup(func() { _ = logging.Initialize(logging.Options{}) })

	mux := http.NewServeMux()
	mux.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"response":{"text":"","confirmation_data":["create a new rung","explain a rung"]}}`)
	})
	mux.HandleFunc("/confirm_intention", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"response":{"text":"XIC A OTE B","is_code":true}}`)
	})
	h := newHarness(t, mux)
	ctx := context.Background()

	res, err := h.d.SendChat(ctx, "conveyor")
	require.NoError(t, err)
	require.NotNil(t, res.Confirmation)
	require.NoError(t, h.d.Choose(ctx, res.Confirmation.ID, 0))
	h.d.Clear()
	logging.CloseAll()

	f, err := os.Open(filepath.Join(logs, time.Now().Format("2006-01-02")+"_audit.jsonl"))
	require.NoError(t, err)
	defer f.Close()

	var got []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e logging.AuditEvent
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		got = append(got, string(e.EventType)+":"+e.Endpoint+":"+e.Outcome)
	}
	want := []string{
		"request_start:" + backend.EndpointChat + ":",
		"request_end:" + backend.EndpointChat + ":structured",
		"confirm_presented::",
		"confirm_resolved::",
		"request_start:" + backend.EndpointConfirmIntention + ":",
		"request_end:" + backend.EndpointConfirmIntention + ":structured",
		"transcript_clear::",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("audit trail mismatch (-want +got):\n%s", diff)
	}
}
