package telegram

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rewired-gh/marketwatch/internal/models"
	"github.com/rewired-gh/marketwatch/internal/notify"
)

func TestEscapeMarkdownV2(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello World"},
		{"Hello_World", "Hello\\_World"},
		{"Test*bold*", "Test\\*bold\\*"},
		{"KOSPI　2,345.26", "KOSPI　2,345\\.26"},
		{"[link](url)", "\\[link\\]\\(url\\)"},
		{"~strikethrough~", "\\~strikethrough\\~"},
		{"`code`", "\\`code\\`"},
		{">blockquote", "\\>blockquote"},
		{"#header", "\\#header"},
		{"+0.62%", "\\+0\\.62%"},
		{"=equal|pipe", "\\=equal\\|pipe"},
		{"{brace}", "\\{brace\\}"},
		{"end!", "end\\!"},
		{`back\slash`, `back\\slash`},
		{"", ""},
		{"_*[]()~`>#+-=|{}.!", "\\_\\*\\[\\]\\(\\)\\~\\`\\>\\#\\+\\-\\=\\|\\{\\}\\.\\!"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := escapeMarkdownV2(tt.input)
			if result != tt.expected {
				t.Errorf("escapeMarkdownV2(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNewClient_InvalidChatID(t *testing.T) {
	_, err := NewClient("", "not-a-number", 3, time.Second)
	if err == nil {
		t.Error("Expected error for invalid chat ID, got nil")
	}
}

func TestFormatMessage(t *testing.T) {
	n := notify.Notification{
		Kind:   notify.KindRate,
		Title:  "Change rate breakout",
		Lines:  []string{"KOSPI　2,345.26　▲14.42　+2.50%"},
		Color:  notify.Positive,
		Footer: "band 3.00%",
	}

	got := formatMessage(n)
	want := "📊 *Change rate breakout* 🔺\nKOSPI　2,345\\.26　▲14\\.42　\\+2\\.50%\n_band 3\\.00%_\n"
	if got != want {
		t.Errorf("formatMessage() = %q, want %q", got, want)
	}

	plain := formatMessage(notify.Notification{Kind: notify.KindReply, Title: "Alarms"})
	if plain != "*Alarms*\n" {
		t.Errorf("formatMessage() = %q", plain)
	}
}

type fakeCommands struct {
	calls []string
	err   error
}

func (f *fakeCommands) record(call string) (notify.Notification, error) {
	f.calls = append(f.calls, call)
	if f.err != nil {
		return notify.Notification{}, f.err
	}
	return notify.Notification{Kind: notify.KindReply, Title: call}, nil
}

func (f *fakeCommands) ShowIndex(_ context.Context, name string) (notify.Notification, error) {
	return f.record("index:" + name)
}
func (f *fakeCommands) ShowStock(_ context.Context, s string) (notify.Notification, error) {
	return f.record("stock:" + s)
}
func (f *fakeCommands) Watch(_ context.Context, s string) (notify.Notification, error) {
	return f.record("watch:" + s)
}
func (f *fakeCommands) Unwatch(_ context.Context, s string) (notify.Notification, error) {
	return f.record("unwatch:" + s)
}
func (f *fakeCommands) List(kind models.Kind) notify.Notification {
	n, _ := f.record("list:" + kind.String())
	return n
}
func (f *fakeCommands) SetAlarm(_ context.Context, s, p string) (notify.Notification, error) {
	return f.record("alarm:" + s + "@" + p)
}
func (f *fakeCommands) RemoveAlarm(_ context.Context, s, p string) (notify.Notification, error) {
	return f.record("off:" + s + "@" + p)
}
func (f *fakeCommands) ListAlarms(_ context.Context, s string) (notify.Notification, error) {
	return f.record("alarms:" + s)
}
func (f *fakeCommands) Recent(_ context.Context, k int) (notify.Notification, error) {
	return f.record(fmt.Sprintf("recent:%d", k))
}

func TestDispatch(t *testing.T) {
	tests := []struct {
		command string
		args    string
		call    string
	}{
		{"index", "", "index:"},
		{"stock", "삼성전자", "stock:삼성전자"},
		{"watch", "005930", "watch:005930"},
		{"unwatch", "KOSPI", "unwatch:KOSPI"},
		{"indices", "", "list:index"},
		{"stocks", "", "list:stock"},
		{"alarm", "삼성 전자 60,000", "alarm:삼성 전자@60,000"},
		{"off", "005930 58000", "off:005930@58000"},
		{"alarms", "", "alarms:"},
		{"recent", "5", "recent:5"},
		{"recent", "", "recent:0"},
	}

	for _, tt := range tests {
		t.Run(tt.command+" "+tt.args, func(t *testing.T) {
			f := &fakeCommands{}
			dispatch(context.Background(), f, tt.command, tt.args)
			if len(f.calls) != 1 || f.calls[0] != tt.call {
				t.Errorf("calls = %v, want [%s]", f.calls, tt.call)
			}
		})
	}
}

func TestDispatch_Replies(t *testing.T) {
	f := &fakeCommands{}

	if got := dispatch(context.Background(), f, "ping", ""); got != "Pong" {
		t.Errorf("ping reply = %q", got)
	}
	if got := dispatch(context.Background(), f, "alarm", "005930"); !strings.Contains(got, "usage") {
		t.Errorf("alarm without price reply = %q", got)
	}
	if got := dispatch(context.Background(), f, "nope", ""); !strings.Contains(got, "Unknown command") {
		t.Errorf("unknown command reply = %q", got)
	}
	if len(f.calls) != 0 {
		t.Errorf("unexpected calls: %v", f.calls)
	}

	f.err = fmt.Errorf("%w: no match", models.ErrNotFound)
	got := dispatch(context.Background(), f, "stock", "없음")
	if !strings.HasPrefix(got, "⚠️") || !strings.Contains(got, "not found") {
		t.Errorf("error reply = %q", got)
	}
}
