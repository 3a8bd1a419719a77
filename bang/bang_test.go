package bang

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func testTable() Table {
	return FromEntries(map[string]Entry{
		"!w":  {URL: "https://en.wikipedia.org/wiki/{}", Suggestion: "!w (Wikipedia)"},
		"!gh": {URL: "https://github.com/search?q={}", Suggestion: "!gh (GitHub)"},
	})
}

func TestResolve(t *testing.T) {
	t.Parallel()
	table := testTable()
	cases := []struct {
		name  string
		query string
		want  string
	}{
		{"canonical", "!w albert einstein", "https://en.wikipedia.org/wiki/albert%20einstein"},
		{"reversed", "albert einstein w!", "https://en.wikipedia.org/wiki/albert%20einstein"},
		{"operator mid query", "albert !w einstein", "https://en.wikipedia.org/wiki/albert%20einstein"},
		{"case insensitive", "!W Einstein", "https://en.wikipedia.org/wiki/einstein"},
		{"no match", "hello world", ""},
		{"empty query", "", ""},
		{"operator only", "!w", "https://en.wikipedia.org"},
		{"second operator", "!gh cascadia", "https://github.com/search?q=cascadia"},
		{"bang not standalone", "!wiki einstein", ""},
		{"first operator in query order wins", "!gh !w einstein", "https://github.com/search?q=%21w%20einstein"},
		{"first operator wins reversed", "w! !gh einstein", "https://en.wikipedia.org/wiki/%21gh%20einstein"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := table.Resolve(tc.query); got != tc.want {
				t.Fatalf("Resolve(%q) = %q, want %q", tc.query, got, tc.want)
			}
		})
	}
}

func TestSuggest(t *testing.T) {
	t.Parallel()
	table := testTable()
	got := table.Suggest("!g")
	if len(got) != 1 || got[0] != "!gh (GitHub)" {
		t.Fatalf("Suggest(!g) = %v", got)
	}
	if all := table.Suggest("!"); len(all) != 2 {
		t.Fatalf("Suggest(!) = %v, want 2 entries", all)
	}
}

func TestLoadFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bangs.json")
	raw, _ := json.Marshal(map[string]Entry{
		"!W": {URL: "https://en.wikipedia.org/wiki/{}", Suggestion: "!w (Wikipedia)"},
	})
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}
	table, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	// Operators are normalized to lower case on load.
	if got := table.Resolve("!w einstein"); got != "https://en.wikipedia.org/wiki/einstein" {
		t.Fatalf("Resolve after load = %q", got)
	}
}

func TestStoreSnapshotSwap(t *testing.T) {
	t.Parallel()
	store := NewStore(testTable())
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				// Either snapshot is fine; a torn one would resolve garbage.
				got := store.Resolve("!w x")
				if got != "https://en.wikipedia.org/wiki/x" && got != "" {
					t.Errorf("unexpected resolution %q", got)
					return
				}
			}
		}()
	}
	for i := 0; i < 100; i++ {
		store.Reload(testTable())
		store.Reload(Table{})
	}
	close(stop)
	wg.Wait()
}

func TestGenerate(t *testing.T) {
	t.Parallel()
	upstream := []upstreamBang{
		{Trigger: "w", URL: "https://en.wikipedia.org/wiki/{{{s}}}", SiteName: "Wikipedia"},
		{Trigger: "", URL: "https://ignored.example/{{{s}}}"},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(upstream)
	}))
	defer srv.Close()

	client := srv.Client()
	client.Transport = rewriteHost(srv.URL)

	path := filepath.Join(t.TempDir(), "bangs.json")
	if err := Generate(client, path); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	table, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if got := table.Resolve("!w einstein"); got != "https://en.wikipedia.org/wiki/einstein" {
		t.Fatalf("Resolve on generated table = %q", got)
	}
}

// rewriteHost redirects every request to the test server regardless of the
// hard-coded upstream URL.
func rewriteHost(base string) http.RoundTripper {
	return roundTripFunc(func(r *http.Request) (*http.Response, error) {
		redirected := *r
		redirected.URL.Scheme = "http"
		redirected.URL.Host = base[len("http://"):]
		return http.DefaultTransport.RoundTrip(&redirected)
	})
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
