// Package notification builds display payloads from partial push input and
// resolves click actions to navigation intents.
package notification

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Default payload fields. Caller-supplied fields override these one by one;
// anything unspecified falls back here, never left empty.
const (
	DefaultTitle = "停车提醒"
	DefaultBody  = "您的停车时间即将到期，请及时处理"
	DefaultIcon  = "/icons/icon-192.png"
	DefaultBadge = "/icons/badge-72.png"
	DefaultTag   = "parking-reminder"
	DefaultURL   = "/"
)

// Click action identifiers.
const (
	ActionView    = "view"
	ActionExtend  = "extend"
	ActionDismiss = "dismiss"
)

// Action is one notification button.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// Data is the opaque bag attached to a displayed notification and echoed
// back on click.
type Data struct {
	URL       string `json:"url"`
	ID        string `json:"id"`
	Action    string `json:"action"`
	Timestamp int64  `json:"timestamp"`
}

// Payload is a fully-resolved display notification.
type Payload struct {
	Title   string   `json:"title"`
	Body    string   `json:"body"`
	Icon    string   `json:"icon"`
	Badge   string   `json:"badge"`
	Tag     string   `json:"tag"`
	Actions []Action `json:"actions"`
	Data    Data     `json:"data"`
}

// Input is the partial structured payload a push may carry.
type Input struct {
	Title  string `json:"title"`
	Body   string `json:"body"`
	Icon   string `json:"icon"`
	Badge  string `json:"badge"`
	Tag    string `json:"tag"`
	URL    string `json:"url"`
	ID     string `json:"id"`
	Action string `json:"action"`
}

func defaultActions() []Action {
	return []Action{
		{Action: ActionView, Title: "查看详情"},
		{Action: ActionExtend, Title: "延长停车"},
		{Action: ActionDismiss, Title: "忽略"},
	}
}

// Build merges a raw push payload over the defaults. A payload that cannot be
// parsed as structured data degrades to a plain-text body; if even that is
// unusable the fixed minimal notification is returned. Display never fails open.
func Build(raw []byte) Payload {
	var in Input
	if len(raw) > 0 && json.Unmarshal(raw, &in) == nil {
		return merge(in)
	}

	text := strings.TrimSpace(string(raw))
	if text != "" && utf8.ValidString(text) {
		return merge(Input{Body: text})
	}

	// Minimal fallback: pure defaults.
	return merge(Input{})
}

// merge applies field-by-field override of the defaults.
func merge(in Input) Payload {
	p := Payload{
		Title:   DefaultTitle,
		Body:    DefaultBody,
		Icon:    DefaultIcon,
		Badge:   DefaultBadge,
		Tag:     DefaultTag,
		Actions: defaultActions(),
	}
	if in.Title != "" {
		p.Title = in.Title
	}
	if in.Body != "" {
		p.Body = in.Body
	}
	if in.Icon != "" {
		p.Icon = in.Icon
	}
	if in.Badge != "" {
		p.Badge = in.Badge
	}
	if in.Tag != "" {
		p.Tag = in.Tag
	}

	p.Data = Data{
		URL:       DefaultURL,
		ID:        in.ID,
		Action:    in.Action,
		Timestamp: time.Now().UnixMilli(),
	}
	if in.URL != "" {
		p.Data.URL = in.URL
	}
	if p.Data.ID == "" {
		p.Data.ID = uuid.New().String()
	}
	return p
}

// Outcome is the resolved effect of a notification click.
type Outcome struct {
	// Navigate is false only for dismiss: no navigation and no client
	// notice at all.
	Navigate bool
	URL      string
}

// ResolveClick maps a click action to its navigation intent.
func ResolveClick(action string, data Data) Outcome {
	switch action {
	case ActionDismiss:
		// Dismiss ends here: no navigation, no notice.
		return Outcome{}
	case ActionExtend:
		return Outcome{Navigate: true, URL: "/extend?id=" + data.ID}
	case ActionView:
		return Outcome{Navigate: true, URL: withTracking(data.URL)}
	default:
		url := data.URL
		if url == "" {
			url = DefaultURL
		}
		return Outcome{Navigate: true, URL: url}
	}
}

// withTracking appends the click tracking query suffix.
func withTracking(url string) string {
	if url == "" {
		url = DefaultURL
	}
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return url + sep + "from=notification"
}
