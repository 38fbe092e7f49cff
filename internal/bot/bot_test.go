package bot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/valyala/fasthttp"

	"personal-assistant/internal/service"
)

func TestKeyboard(t *testing.T) {
	markup := keyboard([][]service.Button{
		{{Label: "✅ Complete #1", Data: "complete_7"}, {Label: "❌ Cancel #1", Data: "cancel_7"}},
		{{Label: "📋 Tasks", Data: "show_tasks"}},
	})

	if len(markup.InlineKeyboard) != 2 || len(markup.InlineKeyboard[0]) != 2 || len(markup.InlineKeyboard[1]) != 1 {
		t.Fatalf("unexpected layout %+v", markup.InlineKeyboard)
	}
	btn := markup.InlineKeyboard[0][1]
	if btn.Text != "❌ Cancel #1" || btn.CallbackData == nil || *btn.CallbackData != "cancel_7" {
		t.Fatalf("unexpected button %+v", btn)
	}
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/voice/file_1.oga") {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("OggS-audio"))
	}))
	defer srv.Close()
	client := &fasthttp.Client{}

	path, cleanup, err := download(context.Background(), client, srv.URL+"/voice/file_1.oga")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if !strings.HasSuffix(path, ".ogg") {
		t.Fatalf("path %q lacks .ogg suffix", path)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "OggS-audio" {
		t.Fatalf("content = %q, err = %v", data, err)
	}
	cleanup()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("temp file not removed: %v", err)
	}

	if _, _, err := download(context.Background(), client, srv.URL+"/missing"); err == nil {
		t.Fatal("expected error for 404")
	}
}

func TestSendRejectsBadChatID(t *testing.T) {
	b := &Bot{}
	if err := b.Send(context.Background(), "not-a-number", "hi", nil); err == nil {
		t.Fatal("expected error for non-numeric chat id")
	}
}
