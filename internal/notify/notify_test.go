package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/watchhook/watchhook/internal/config"
	"github.com/watchhook/watchhook/internal/watch"
)

const (
	invalidPayloadMsg    = "invalid payload: %v"
	unexpectedPayloadMsg = "unexpected payload: %v"
)

var fixedNow = time.Date(2024, 5, 17, 14, 3, 9, 0, time.UTC)

func testMessage(diff string) Message {
	return Message{JobName: "Example Site", JobURL: "https://example.com", Diff: diff, DetectedAt: fixedNow}
}

// recorder is an httptest server that records every request body per path.
type recorder struct {
	*httptest.Server
	mu     sync.Mutex
	bodies map[string][]map[string]any
	status map[string]int
}

func newRecorder(t *testing.T) *recorder {
	t.Helper()
	r := &recorder{bodies: map[string][]map[string]any{}, status: map[string]int{}}
	r.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var payload map[string]any
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			t.Errorf(invalidPayloadMsg, err)
		}
		r.mu.Lock()
		r.bodies[req.URL.Path] = append(r.bodies[req.URL.Path], payload)
		code, ok := r.status[req.URL.Path]
		r.mu.Unlock()
		if !ok {
			code = http.StatusOK
		}
		w.WriteHeader(code)
		if strings.HasPrefix(req.URL.Path, "/bot") {
			if code == http.StatusOK {
				fmt.Fprint(w, `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":123,"type":"private"}}}`)
			} else {
				fmt.Fprintf(w, `{"ok":false,"error_code":%d,"description":"server error"}`, code)
			}
		}
	}))
	t.Cleanup(r.Close)
	return r
}

func (r *recorder) setStatus(path string, code int) {
	r.mu.Lock()
	r.status[path] = code
	r.mu.Unlock()
}

func (r *recorder) calls(path string) []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bodies[path]
}

func (r *recorder) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.bodies {
		n += len(b)
	}
	return n
}

func useTelegramAPI(t *testing.T, url string) {
	t.Helper()
	old := telegramAPIURL
	telegramAPIURL = url
	t.Cleanup(func() { telegramAPIURL = old })
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		limit int
		want  string
	}{
		{"shorter than limit", "+line added", 500, "+line added"},
		{"exactly at limit", strings.Repeat("a", 10), 10, strings.Repeat("a", 10)},
		{"one over limit", strings.Repeat("a", 11), 10, strings.Repeat("a", 10) + Ellipsis},
		{"empty", "", 10, ""},
		{"counts characters not bytes", "ééééé", 3, "ééé" + Ellipsis},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Truncate(tt.in, tt.limit); got != tt.want {
				t.Fatalf("Truncate(%q, %d) = %q, want %q", tt.in, tt.limit, got, tt.want)
			}
		})
	}
}

func TestTruncateLength(t *testing.T) {
	for _, limit := range []int{SlackDiffLimit, DiscordDiffLimit} {
		got := Truncate(strings.Repeat("x", limit*2), limit)
		if n := utf8.RuneCountInString(got); n != limit+len(Ellipsis) {
			t.Fatalf("expected %d characters, got %d", limit+len(Ellipsis), n)
		}
		if !strings.HasSuffix(got, Ellipsis) {
			t.Fatalf("expected ellipsis suffix")
		}
	}
}

func TestDiscordPayload(t *testing.T) {
	srv := newRecorder(t)
	d := &Discord{WebhookURL: srv.URL + "/discord"}
	if err := d.Send(context.Background(), testMessage("+line added")); err != nil {
		t.Fatalf("discord send failed: %v", err)
	}
	calls := srv.calls("/discord")
	if len(calls) != 1 {
		t.Fatalf("expected one discord call, got %d", len(calls))
	}
	embeds, ok := calls[0]["embeds"].([]any)
	if !ok || len(embeds) != 1 {
		t.Fatalf("expected embeds array in payload: %v", calls[0])
	}
	embed := embeds[0].(map[string]any)
	if embed["title"] != "Website Change Detected: Example Site" || embed["url"] != "https://example.com" {
		t.Fatalf("unexpected embed content: %v", embed)
	}
	if embed["description"] != "Change detected at 2024-05-17 14:03:09" {
		t.Fatalf("unexpected description: %v", embed["description"])
	}
	if embed["color"] != float64(0x00ff00) {
		t.Fatalf("unexpected color: %v", embed["color"])
	}
	field := embed["fields"].([]any)[0].(map[string]any)
	if field["name"] != "Changes" || field["value"] != "+line added" || field["inline"] != false {
		t.Fatalf("unexpected field: %v", field)
	}
}

func TestDiscordTruncatesLongDiff(t *testing.T) {
	srv := newRecorder(t)
	d := &Discord{WebhookURL: srv.URL + "/discord"}
	diff := strings.Repeat("d", DiscordDiffLimit+50)
	if err := d.Send(context.Background(), testMessage(diff)); err != nil {
		t.Fatalf("discord send failed: %v", err)
	}
	embed := srv.calls("/discord")[0]["embeds"].([]any)[0].(map[string]any)
	value := embed["fields"].([]any)[0].(map[string]any)["value"].(string)
	if value != diff[:DiscordDiffLimit]+Ellipsis {
		t.Fatalf("unexpected truncated value of length %d", len(value))
	}
}

func TestSlackPayload(t *testing.T) {
	srv := newRecorder(t)
	s := &Slack{WebhookURL: srv.URL + "/slack"}
	if err := s.Send(context.Background(), testMessage("+line added")); err != nil {
		t.Fatalf("slack send failed: %v", err)
	}
	payload := srv.calls("/slack")[0]
	if payload["text"] != "Website Change Detected: Example Site" {
		t.Fatalf(unexpectedPayloadMsg, payload)
	}
	att := payload["attachments"].([]any)[0].(map[string]any)
	if att["title"] != "Example Site" || att["title_link"] != "https://example.com" || att["color"] != "good" {
		t.Fatalf("unexpected attachment: %v", att)
	}
	if att["text"] != "Change detected at 2024-05-17 14:03:09\n\n+line added" {
		t.Fatalf("unexpected attachment text: %q", att["text"])
	}
}

func TestSlackTruncatesLongDiff(t *testing.T) {
	srv := newRecorder(t)
	s := &Slack{WebhookURL: srv.URL + "/slack"}
	diff := strings.Repeat("s", SlackDiffLimit+1)
	if err := s.Send(context.Background(), testMessage(diff)); err != nil {
		t.Fatalf("slack send failed: %v", err)
	}
	att := srv.calls("/slack")[0]["attachments"].([]any)[0].(map[string]any)
	if !strings.HasSuffix(att["text"].(string), "\n\n"+diff[:SlackDiffLimit]+Ellipsis) {
		t.Fatalf("unexpected attachment text: %q", att["text"])
	}
}

func TestTelegramPayload(t *testing.T) {
	srv := newRecorder(t)
	useTelegramAPI(t, srv.URL)

	tg, err := NewTelegram("tok", "123", nil)
	if err != nil {
		t.Fatalf("telegram init failed: %v", err)
	}
	if err := tg.Send(context.Background(), testMessage("+line added")); err != nil {
		t.Fatalf("telegram send failed: %v", err)
	}
	calls := srv.calls("/bottok/sendMessage")
	if len(calls) != 1 {
		t.Fatalf("expected one sendMessage call, got %d", srv.total())
	}
	payload := calls[0]
	if fmt.Sprint(payload["chat_id"]) != "123" || payload["parse_mode"] != "Markdown" {
		t.Fatalf(unexpectedPayloadMsg, payload)
	}
	want := "🔔 *Website Change Detected*\n\n*Site:* Example Site\n*URL:* https://example.com\n*Time:* 2024-05-17 14:03:09\n\n*Changes:*\n+line added"
	if payload["text"] != want {
		t.Fatalf("unexpected text:\n%q\nwant\n%q", payload["text"], want)
	}
}

func TestTelegramAPIError(t *testing.T) {
	srv := newRecorder(t)
	srv.setStatus("/bottok/sendMessage", http.StatusInternalServerError)
	useTelegramAPI(t, srv.URL)

	tg, err := NewTelegram("tok", "123", nil)
	if err != nil {
		t.Fatalf("telegram init failed: %v", err)
	}
	if err := tg.Send(context.Background(), testMessage("x")); err == nil {
		t.Fatal("expected error from failing Bot API")
	}
}

func TestPostJSONStatusError(t *testing.T) {
	srv := newRecorder(t)
	srv.setStatus("/fail", http.StatusInternalServerError)
	err := postJSON(context.Background(), nil, srv.URL+"/fail", map[string]string{"a": "b"})
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func configFor(srv *recorder, discord, slack, telegram bool) *config.Config {
	cfg := config.DefaultConfig()
	if discord {
		cfg.Discord = &config.DiscordConfig{WebhookURL: srv.URL + "/discord"}
	}
	if slack {
		cfg.Slack = &config.SlackConfig{WebhookURL: srv.URL + "/slack"}
	}
	if telegram {
		cfg.Telegram = &config.TelegramConfig{Enabled: true, BotToken: "tok", ChatID: "123"}
	}
	return cfg
}

var exampleJob = watch.Job{Name: "Example Site", URL: "https://example.com"}

func TestDispatchOnlySlackConfigured(t *testing.T) {
	srv := newRecorder(t)
	useTelegramAPI(t, srv.URL)

	d := NewDispatcher(configFor(srv, false, true, false), nil, zerolog.Nop(), WithClock(func() time.Time { return fixedNow }))
	results := d.Dispatch(context.Background(), exampleJob, watch.Report{Changed: true, Diff: "+line added"})

	if srv.total() != 1 || len(srv.calls("/slack")) != 1 {
		t.Fatalf("expected exactly one POST to slack, got %d requests", srv.total())
	}
	if len(results) != 1 || !results[0].OK() || results[0].Channel != "Slack" {
		t.Fatalf("unexpected results: %+v", results)
	}
	text := srv.calls("/slack")[0]["attachments"].([]any)[0].(map[string]any)["text"].(string)
	if !strings.Contains(text, "+line added") || strings.Contains(text, Ellipsis) {
		t.Fatalf("unexpected slack text %q", text)
	}
}

func TestDispatchNoChannels(t *testing.T) {
	srv := newRecorder(t)
	useTelegramAPI(t, srv.URL)

	d := NewDispatcher(config.DefaultConfig(), nil, zerolog.Nop())
	if d.Len() != 0 {
		t.Fatalf("expected no channels, got %d", d.Len())
	}
	results := d.Dispatch(context.Background(), exampleJob, watch.Report{Changed: true, Diff: "x"})
	if len(results) != 0 || srv.total() != 0 {
		t.Fatalf("expected no calls, got %d results and %d requests", len(results), srv.total())
	}
}

func TestDispatchFailureDoesNotStopOtherChannels(t *testing.T) {
	srv := newRecorder(t)
	useTelegramAPI(t, srv.URL)
	srv.setStatus("/discord", http.StatusInternalServerError)

	var logs bytes.Buffer
	d := NewDispatcher(configFor(srv, true, true, true), nil, zerolog.New(&logs))
	results := d.Dispatch(context.Background(), exampleJob, watch.Report{Changed: true, Diff: "+x"})

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %+v", results)
	}
	if results[0].Channel != "Discord" || results[0].OK() {
		t.Fatalf("expected discord failure first, got %+v", results[0])
	}
	if !results[1].OK() || !results[2].OK() {
		t.Fatalf("expected slack and telegram to succeed: %+v", results)
	}
	if len(srv.calls("/slack")) != 1 || len(srv.calls("/bottok/sendMessage")) != 1 {
		t.Fatalf("expected slack and telegram calls after discord failure")
	}
	if !strings.Contains(logs.String(), `"channel":"Discord"`) || !strings.Contains(logs.String(), `"level":"error"`) {
		t.Fatalf("expected discord failure to be logged, got %s", logs.String())
	}
}

func TestDispatchTelegramSkippedWithoutCredentials(t *testing.T) {
	tests := []struct {
		name string
		tg   *config.TelegramConfig
	}{
		{"missing token", &config.TelegramConfig{Enabled: true, ChatID: "123"}},
		{"missing chat id", &config.TelegramConfig{Enabled: true, BotToken: "tok"}},
		{"missing both", &config.TelegramConfig{Enabled: true}},
		{"disabled with credentials", &config.TelegramConfig{BotToken: "tok", ChatID: "123"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newRecorder(t)
			useTelegramAPI(t, srv.URL)

			var logs bytes.Buffer
			cfg := config.DefaultConfig()
			cfg.Telegram = tt.tg
			d := NewDispatcher(cfg, nil, zerolog.New(&logs))
			d.Dispatch(context.Background(), exampleJob, watch.Report{Changed: true, Diff: "x"})
			if srv.total() != 0 {
				t.Fatalf("expected no telegram call, got %d", srv.total())
			}
			if logs.Len() != 0 {
				t.Fatalf("expected silent skip, got logs %q", logs.String())
			}
		})
	}
}

type stubChannel struct {
	name string
	err  error
	got  []Message
}

func (s *stubChannel) Name() string { return s.name }
func (s *stubChannel) Send(_ context.Context, msg Message) error {
	s.got = append(s.got, msg)
	return s.err
}

func TestDispatchUsesUnknownForNamelessJob(t *testing.T) {
	d := NewDispatcher(config.DefaultConfig(), nil, zerolog.Nop())
	first := &stubChannel{name: "first", err: errors.New("down")}
	second := &stubChannel{name: "second"}
	d.Add(first)
	d.Add(nil)
	d.Add(second)

	results := d.Dispatch(context.Background(), watch.Job{URL: "https://example.com"}, watch.Report{Changed: true, Diff: "d"})
	if len(results) != 2 || results[0].OK() || !results[1].OK() {
		t.Fatalf("unexpected results %+v", results)
	}
	if len(second.got) != 1 || second.got[0].JobName != watch.UnknownJobName {
		t.Fatalf("unexpected message %+v", second.got)
	}
}

func TestDispatcherDefaultClientTimeout(t *testing.T) {
	srv := newRecorder(t)
	d := NewDispatcher(configFor(srv, true, true, true), nil, zerolog.Nop())
	if d.Len() != 3 {
		t.Fatalf("expected 3 channels, got %d", d.Len())
	}
	for _, c := range d.channels {
		var client *http.Client
		switch ch := c.(type) {
		case *Discord:
			client = ch.Client
		case *Slack:
			client = ch.Client
		case *Telegram:
			client = ch.client
		default:
			t.Fatalf("unexpected channel %T", c)
		}
		if client == nil || client.Timeout != SendTimeout {
			t.Fatalf("%s: expected client timeout %v, got %+v", c.Name(), SendTimeout, client)
		}
	}
	if SendTimeout != 10*time.Second {
		t.Fatalf("expected 10s send timeout, got %v", SendTimeout)
	}
}

func TestNewTelegramDefaultsClientTimeout(t *testing.T) {
	tg, err := NewTelegram("123:abc", "42", nil)
	if err != nil {
		t.Fatalf("NewTelegram failed: %v", err)
	}
	if tg.client == nil || tg.client.Timeout != SendTimeout {
		t.Fatalf("expected client timeout %v, got %+v", SendTimeout, tg.client)
	}
}

func TestPostJSONGivesUpOnSlowServer(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	err := postJSON(context.Background(), &http.Client{Timeout: 50 * time.Millisecond}, srv.URL, map[string]string{"text": "x"})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("request was not bounded by the client timeout: %v", elapsed)
	}
}
