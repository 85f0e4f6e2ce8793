package notification

import (
	"strings"
	"testing"
)

func TestBuildDefaults(t *testing.T) {
	p := Build(nil)

	if p.Title != "停车提醒" {
		t.Errorf("title = %q", p.Title)
	}
	if p.Body != DefaultBody {
		t.Errorf("body = %q", p.Body)
	}
	if p.Icon != DefaultIcon || p.Badge != DefaultBadge || p.Tag != DefaultTag {
		t.Errorf("icon/badge/tag = %q/%q/%q", p.Icon, p.Badge, p.Tag)
	}
	if len(p.Actions) != 3 {
		t.Fatalf("actions = %d, want 3", len(p.Actions))
	}
	wantActions := []string{ActionView, ActionExtend, ActionDismiss}
	for i, a := range p.Actions {
		if a.Action != wantActions[i] {
			t.Errorf("actions[%d] = %q, want %q", i, a.Action, wantActions[i])
		}
	}
	if p.Data.URL != "/" {
		t.Errorf("data url = %q, want /", p.Data.URL)
	}
	if p.Data.ID == "" {
		t.Error("data id not generated")
	}
	if p.Data.Timestamp == 0 {
		t.Error("data timestamp not set")
	}
}

func TestBuildPartialOverride(t *testing.T) {
	p := Build([]byte(`{"title":"车位到期","url":"/spots/42","id":"n-1"}`))

	if p.Title != "车位到期" {
		t.Errorf("title = %q", p.Title)
	}
	// Unspecified fields fall back, never stay empty.
	if p.Body != DefaultBody {
		t.Errorf("body = %q, want default", p.Body)
	}
	if p.Data.URL != "/spots/42" || p.Data.ID != "n-1" {
		t.Errorf("data = %+v", p.Data)
	}
}

func TestBuildPlainText(t *testing.T) {
	p := Build([]byte("车辆即将超时"))

	if p.Body != "车辆即将超时" {
		t.Errorf("body = %q, want the raw text", p.Body)
	}
	if p.Title != DefaultTitle {
		t.Errorf("title = %q, want default", p.Title)
	}
}

func TestBuildGarbageFallsBack(t *testing.T) {
	p := Build([]byte{0xff, 0xfe, 0x01})

	if p.Title != DefaultTitle || p.Body != DefaultBody {
		t.Errorf("invalid payload did not fall back: %+v", p)
	}
}

func TestResolveClick(t *testing.T) {
	data := Data{URL: "/spots/42", ID: "n-1"}

	tests := []struct {
		name   string
		action string
		data   Data
		want   Outcome
	}{
		{"dismiss is terminal", ActionDismiss, data, Outcome{}},
		{"extend", ActionExtend, data, Outcome{Navigate: true, URL: "/extend?id=n-1"}},
		{"view appends tracking", ActionView, data, Outcome{Navigate: true, URL: "/spots/42?from=notification"}},
		{"view with existing query", ActionView, Data{URL: "/spots?zone=a"}, Outcome{Navigate: true, URL: "/spots?zone=a&from=notification"}},
		{"view without url", ActionView, Data{}, Outcome{Navigate: true, URL: "/?from=notification"}},
		{"body click uses data url", "", data, Outcome{Navigate: true, URL: "/spots/42"}},
		{"body click without url", "", Data{}, Outcome{Navigate: true, URL: "/"}},
		{"unknown action behaves like body click", "snooze", data, Outcome{Navigate: true, URL: "/spots/42"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveClick(tt.action, tt.data)
			if got != tt.want {
				t.Errorf("ResolveClick(%q) = %+v, want %+v", tt.action, got, tt.want)
			}
		})
	}
}

func TestBuildIDsAreUnique(t *testing.T) {
	a := Build(nil)
	b := Build(nil)
	if a.Data.ID == b.Data.ID {
		t.Error("two default builds shared a notification id")
	}
	if strings.TrimSpace(a.Data.ID) == "" {
		t.Error("generated id is blank")
	}
}
