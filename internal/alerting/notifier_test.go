package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testNote() Notification {
	fv := 0.162
	seed := 661
	return Notification{
		WatchName:   "AK-47 | Redline (Field-Tested)",
		PriceCents:  70000,
		ProfitCents: 14900,
		FloatValue:  &fv,
		PaintSeed:   &seed,
		Stickers:    []string{"Howling Dawn"},
		ListingURL:  "https://steamcommunity.com/market/listings/730/item",
		InspectURL:  "steam://rungame/730/inspect/1",
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testNote()); err != nil {
		t.Fatalf("Telegram Notify 应成功: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	if !strings.Contains(received["text"], "candidate found") {
		t.Fatalf("text 应包含 candidate found: %q", received["text"])
	}
	if !strings.Contains(received["text"], "0.162000") {
		t.Fatalf("text 应包含 float 值: %q", received["text"])
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testNote()); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

func TestRenderMessageOmitsMissingEnrichment(t *testing.T) {
	note := Notification{WatchName: "Glock-18 | Fade", PriceCents: 1234, ProfitCents: 100}
	text := RenderMessage(note)
	if strings.Contains(text, "Float") || strings.Contains(text, "Seed") {
		t.Fatalf("缺少 enrichment 时不应渲染 float/seed: %q", text)
	}
	if !strings.Contains(text, "Stickers: None") {
		t.Fatalf("应渲染 Stickers: None: %q", text)
	}
	if !strings.Contains(text, "$12.34") {
		t.Fatalf("价格渲染不正确: %q", text)
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
