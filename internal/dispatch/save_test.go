package dispatch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"rungchat/internal/backend"
	"rungchat/internal/transcript"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripCDATA(t *testing.T) {
	assert.Equal(t, "XIC A OTE B", StripCDATA("<![CDATA[XIC A OTE B]]>"))
	assert.Equal(t, "plain", StripCDATA("plain"))
}

func TestDefaultRungFilename(t *testing.T) {
	assert.Equal(t, "generated_rung_20261019093015.L5X", DefaultRungFilename(fixedNow))
}

func TestSaveStateLabels(t *testing.T) {
	assert.Equal(t, "Save", SaveIdle.Label())
	assert.Equal(t, "Saving...", SaveSaving.Label())
	assert.Equal(t, "Downloaded!", SaveDone.Label())
	assert.Equal(t, "Error", SaveFailed.Label())
}

func TestPersistMessage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/generate_rung_from_saved_code", func(w http.ResponseWriter, r *http.Request) {
		body := decode(t, r)
		assert.Equal(t, "XIC Start OTE Motor", str(body["code_content"]))
		assert.Equal(t, "generated_rung_20261019093015.L5X", str(body["filename"]))
		w.Header().Set("Content-Type", "application/octet-stream")
		io.WriteString(w, "<RSLogix5000Content/>")
	})
	h := newHarness(t, mux)

	code := h.d.Log().Append(transcript.Message{Sender: transcript.Bot, Kind: transcript.KindCode, Text: "<![CDATA[XIC Start OTE Motor]]>"})
	assert.Equal(t, SaveIdle, h.d.SaveStateOf(code.ID))
	sc := h.d.SaveControlFor(code.ID)

	var mu sync.Mutex
	var states []SaveState
	h.d.Log().Subscribe(func(ev transcript.Event) {
		if ev.Type == transcript.Updated && ev.Message.ID == code.ID {
			mu.Lock()
			states = append(states, sc.State())
			mu.Unlock()
		}
	})

	res, err := h.d.PersistMessage(context.Background(), code.ID)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(h.dir, "generated_rung_20261019093015.L5X"), res.SavedPath)
	data, err := os.ReadFile(res.SavedPath)
	require.NoError(t, err)
	assert.Equal(t, "<RSLogix5000Content/>", string(data))

	assert.Equal(t, SaveDone, sc.State())
	assert.Equal(t, SaveDone, h.d.SaveStateOf(code.ID))
	assert.Eventually(t, func() bool { return sc.State() == SaveIdle }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, h.d.Log().Len(), "saving appends no message")
	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(states), 2)
	assert.Equal(t, []SaveState{SaveSaving, SaveDone}, states[:2])
}

func TestPersistMessageFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/generate_rung_from_saved_code", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"success":false,"error":"No code content provided to generate rung."}`)
	})
	h := newHarness(t, mux)

	code := h.d.Log().Append(transcript.Message{Sender: transcript.Bot, Kind: transcript.KindCode, Text: "x"})
	_, err := h.d.PersistMessage(context.Background(), code.ID)

	var f *backend.Failure
	require.True(t, errors.As(err, &f))
	assert.Equal(t, backend.FailureSave, f.Kind)
	assert.Equal(t, "No code content provided to generate rung.", f.Message)

	sc := h.d.SaveControlFor(code.ID)
	assert.Equal(t, SaveFailed, sc.State())
	assert.Equal(t, 1, h.d.Log().Len(), "failure appends no message")

	_, err = h.d.PersistMessage(context.Background(), code.ID)
	assert.ErrorIs(t, err, ErrSaveInProgress, "outcome is shown until the control reverts")

	assert.Eventually(t, func() bool { return sc.State() == SaveIdle }, time.Second, 5*time.Millisecond)
}

func TestPersistMessageRejectsNonCode(t *testing.T) {
	h := newHarness(t, http.NewServeMux())
	m := h.d.Log().Append(transcript.Message{Sender: transcript.Bot, Kind: transcript.KindText, Text: "hello"})

	_, err := h.d.PersistMessage(context.Background(), m.ID)
	assert.ErrorIs(t, err, ErrNotCode)
	_, err = h.d.PersistMessage(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotCode)
}

func TestPersistGeneratedArtifactExplicitName(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/generate_rung_from_saved_code", func(w http.ResponseWriter, r *http.Request) {
		body := decode(t, r)
		assert.Equal(t, "Pump.L5X", str(body["filename"]))
		io.WriteString(w, "<L5X/>")
	})
	h := newHarness(t, mux)

	res, err := h.d.PersistGeneratedArtifact(context.Background(), "XIC A OTE B", "Pump.L5X")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(h.dir, "Pump.L5X"), res.SavedPath)
}

func TestUploadDocument(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/upload_std_document", func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"status":"success","message":"Document 'iec.pdf' indexed."}`)
		})
		h := newHarness(t, mux)

		out, err := h.d.UploadDocument(context.Background(), "iec.pdf", []byte("%PDF"))
		require.NoError(t, err)
		assert.True(t, out.OK)
		assert.Equal(t, "Document 'iec.pdf' indexed.", out.Message)
		assert.Zero(t, h.d.Log().Len())
	})

	t.Run("failure without message", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/upload_std_document", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			io.WriteString(w, `{"status":"error"}`)
		})
		h := newHarness(t, mux)

		out, err := h.d.UploadDocument(context.Background(), "iec.pdf", nil)
		assert.Error(t, err)
		assert.False(t, out.OK)
		assert.Equal(t, `Failed to upload "iec.pdf".`, out.Message)
	})

	t.Run("network error", func(t *testing.T) {
		h := newHarness(t, http.NewServeMux())
		h.srv.Close()

		out, err := h.d.UploadDocument(context.Background(), "iec.pdf", nil)
		var te *backend.TransportError
		require.True(t, errors.As(err, &te))
		assert.Contains(t, out.Message, "Network error: ")
	})
}
