package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"rungchat/internal/config"
	"rungchat/internal/transcript"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// setup points the globals at a fake backend and returns a command whose
// output is captured.
func setup(t *testing.T, mux *http.ServeMux) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	logger = zap.NewNop()
	timeout = 10 * time.Second
	choices = nil
	saveName = ""

	cfg = config.DefaultConfig()
	cfg.Backend.BaseURL = srv.URL
	cfg.Backend.Timeout = "5s"
	cfg.Conversation.ThinkingDelay = "1h"
	cfg.Downloads.Dir = t.TempDir()
	cfg.History.Enabled = false
	cfg.Usage.Enabled = false

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	return cmd, &out
}

func TestFormatMessage(t *testing.T) {
	got := formatMessage(transcript.Message{
		Sender:          transcript.Bot,
		Kind:            transcript.KindOptions,
		Text:            "Did you mean to:",
		Options:         []string{"create a new rung", "explain a rung"},
		DurationSeconds: transcript.Seconds(1.2),
	})
	assert.Equal(t, "Did you mean to:\n  1) create a new rung\n  2) explain a rung\n(1.20s)\n", got)

	got = formatMessage(transcript.Message{Sender: transcript.Bot, Kind: transcript.KindCode, Text: "XIC A OTE B"})
	assert.Equal(t, "```\nXIC A OTE B\n```\n", got)

	got = formatMessage(transcript.Message{Sender: transcript.User, Kind: transcript.KindText, Text: "hi"})
	assert.Equal(t, "> hi\n", got)
}

func TestRunAskFollowsChoice(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"response":{"text":"","confirmation_data":["create a new rung","explain a rung"]}}`)
	})
	mux.HandleFunc("/confirm_intention", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"response":{"text":"XIC Start OTE Motor","is_code":true,"duration":0.5}}`)
	})
	cmd, out := setup(t, mux)
	choices = []int{1}

	require.NoError(t, runAsk(cmd, []string{"motor", "start"}))

	s := out.String()
	assert.Contains(t, s, "> motor start\n")
	assert.Contains(t, s, "  1) create a new rung\n")
	assert.Contains(t, s, "> Yes, create a new rung\n")
	assert.Contains(t, s, "XIC Start OTE Motor")
	assert.Contains(t, s, "(0.50s)")
	assert.NotContains(t, s, "Pick an option")
}

func TestRunAskWithoutChoiceHints(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"response":{"text":"","confirmation_data":["a","b"]}}`)
	})
	cmd, out := setup(t, mux)

	require.NoError(t, runAsk(cmd, []string{"ambiguous"}))
	assert.Contains(t, out.String(), "Pick an option with --choice N.")
}

func TestRunAskChoiceOutOfRange(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"response":{"text":"","confirmation_data":["a","b"]}}`)
	})
	cmd, _ := setup(t, mux)
	choices = []int{3}

	err := runAsk(cmd, []string{"ambiguous"})
	assert.EqualError(t, err, "choice 3 out of range 1-2")
}

func TestRunAskBackendError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":"model unavailable"}`)
	})
	cmd, out := setup(t, mux)

	assert.Error(t, runAsk(cmd, []string{"hello"}))
	assert.Contains(t, out.String(), "Error: model unavailable")
}

func TestRunAttachSavesArtifact(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/attach", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.Header().Set("Content-Disposition", `attachment; filename="generated_file_42.L5X"`)
		io.WriteString(w, "<RSLogix5000Content/>")
	})
	cmd, out := setup(t, mux)

	plan := filepath.Join(t.TempDir(), "plan.xlsx")
	require.NoError(t, os.WriteFile(plan, []byte("PK"), 0644))

	require.NoError(t, runAttach(cmd, []string{plan}))

	want := filepath.Join(cfg.Downloads.Dir, "generated_file_42.L5X")
	assert.Contains(t, out.String(), "Saved "+want)
	assert.Contains(t, out.String(), "> Attached Excel file: plan.xlsx. Processing...")
	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, "<RSLogix5000Content/>", string(data))
}

func TestRunSaveFromStdin(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/generate_rung_from_saved_code", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `"code_content":"XIC A OTE B"`)
		io.WriteString(w, "<L5X/>")
	})
	cmd, out := setup(t, mux)
	cmd.SetIn(strings.NewReader("<![CDATA[XIC A OTE B]]>"))
	saveName = "Pump.L5X"

	require.NoError(t, runSave(cmd, []string{"-"}))
	assert.Equal(t, "Saved "+filepath.Join(cfg.Downloads.Dir, "Pump.L5X")+"\n", out.String())
}

func TestRunUploadDoc(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/upload_std_document", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"success","message":"Indexed iec.pdf"}`)
	})
	cmd, out := setup(t, mux)

	doc := filepath.Join(t.TempDir(), "iec.pdf")
	require.NoError(t, os.WriteFile(doc, []byte("%PDF"), 0644))

	require.NoError(t, runUploadDoc(cmd, []string{doc}))
	assert.Equal(t, "Uploading \"iec.pdf\"...\nIndexed iec.pdf\n", out.String())
}

func TestRunHistoryAfterAsk(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"response":{"text":"hello back"}}`)
	})
	cmd, out := setup(t, mux)
	cfg.History.Enabled = true
	cfg.History.DatabasePath = filepath.Join(t.TempDir(), "history.db")

	require.NoError(t, runAsk(cmd, []string{"hello"}))
	out.Reset()

	historyLimit = 10
	historyConversation = ""
	historyList = false
	require.NoError(t, runHistory(cmd, nil))
	s := out.String()
	assert.Contains(t, s, "> hello\n")
	assert.Contains(t, s, "hello back\n")

	out.Reset()
	historyList = true
	defer func() { historyList = false }()
	require.NoError(t, runHistory(cmd, nil))
	assert.Contains(t, out.String(), "CONVERSATION")
}

func TestRunUsageAfterAsk(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"response":{"text":"hello back","duration":0.25}}`)
	})
	cmd, out := setup(t, mux)
	cfg.Usage.Enabled = true
	cfg.Usage.Path = filepath.Join(t.TempDir(), "usage.json")
	resetUsage = false

	require.NoError(t, runAsk(cmd, []string{"hello"}))
	out.Reset()

	require.NoError(t, runUsage(cmd, nil))
	s := out.String()
	assert.Contains(t, s, "ENDPOINT")
	assert.Contains(t, s, "chat")
	assert.Contains(t, s, "0.25s")

	out.Reset()
	resetUsage = true
	defer func() { resetUsage = false }()
	require.NoError(t, runUsage(cmd, nil))
	assert.Equal(t, "Usage statistics cleared.\n", out.String())

	out.Reset()
	resetUsage = false
	require.NoError(t, runUsage(cmd, nil))
	assert.Equal(t, "No requests recorded.\n", out.String())
}

func TestRunConfigInit(t *testing.T) {
	cmd, out := setup(t, http.NewServeMux())
	configPath = filepath.Join(t.TempDir(), ".rung", "config.yaml")
	defer func() { configPath = config.DefaultConfigPath() }()
	forceInit = false

	require.NoError(t, runConfigInit(cmd, nil))
	assert.Contains(t, out.String(), "Wrote ")
	assert.Error(t, runConfigInit(cmd, nil))

	loaded, err := config.Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5000", loaded.Backend.BaseURL)
}

func TestApplyFlagOverrides(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().StringVar(&backendURL, "backend", "", "")
	cmd.Flags().StringVar(&downloadDir, "download-dir", "", "")
	require.NoError(t, cmd.Flags().Set("backend", "http://plc-assistant:8080"))

	noHistory = true
	defer func() { noHistory = false }()

	c := config.DefaultConfig()
	c.Downloads.Dir = "keep"
	applyFlagOverrides(cmd, c)

	assert.Equal(t, "http://plc-assistant:8080", c.Backend.BaseURL)
	assert.Equal(t, "keep", c.Downloads.Dir)
	assert.False(t, c.History.Enabled)
}
