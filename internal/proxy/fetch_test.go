package proxy

import (
	"net/url"
	"strings"
	"testing"
)

func TestBuildSearchQuery(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		query string
		args  url.Values
		near  string
		want  string
	}{
		{
			name:  "plain query",
			query: "golang testing",
			want:  "golang+testing",
		},
		{
			name:  "allowed params copied",
			query: "cats",
			args:  url.Values{"tbm": {"isch"}, "start": {"10"}, "ved": {"tracking"}},
			want:  "cats&tbm=isch&start=10",
		},
		{
			name:  "near city",
			query: "coffee",
			near:  "Portland",
			want:  "coffee&near=Portland",
		},
		{
			name:  "past range becomes time filter",
			query: "news :past week",
			want:  "news&tbs=qdr:w",
		},
		{
			name:  "past year",
			query: "releases :past year",
			want:  "releases&tbs=qdr:y",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := buildSearchQuery(tt.query, tt.args, tt.near, "")
			if got != tt.want {
				t.Errorf("buildSearchQuery(%q) = %q, want %q", tt.query, got, tt.want)
			}
		})
	}
}

func TestBuildSearchQueryLanguage(t *testing.T) {
	t.Parallel()
	got := buildSearchQuery("hola", nil, "", "lang_es")
	if !strings.Contains(got, "&lr=lang_es") || !strings.Contains(got, "&hl=es") {
		t.Errorf("language args missing: %q", got)
	}
}

func TestGenUserAgentShape(t *testing.T) {
	t.Parallel()
	mobile := genUserAgent("Mozilla/5.0 (Linux; Android 13) Chrome/110")
	if !strings.Contains(mobile, "Android 10; Mobile") {
		t.Errorf("mobile agent lost its form factor: %q", mobile)
	}
	desktop := genUserAgent("Mozilla/5.0 (X11; Linux x86_64) Firefox/115")
	if strings.Contains(desktop, "Mobile") {
		t.Errorf("desktop agent claims mobile: %q", desktop)
	}
	for _, ua := range []string{mobile, desktop} {
		if strings.HasPrefix(ua, "Mozilla/") {
			t.Errorf("agent %q identifies a real browser", ua)
		}
		if !strings.Contains(ua, "zilla/5.0") {
			t.Errorf("agent %q lost the expected shape", ua)
		}
	}
}
