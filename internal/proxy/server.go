package proxy

import (
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"veil/bang"
	"veil/filter"
)

// Config describes server wiring and runtime behaviour. Boolean and string
// preferences become the per-session filter defaults; users can override
// the safe subset through the config endpoint.
type Config struct {
	Addr         string        `env:"VEIL_ADDR" envDefault:":8000"`
	RootURL      string        `env:"VEIL_ROOT_URL"`
	BangFile     string        `env:"VEIL_BANG_FILE" envDefault:"config/bangs.json"`
	FetchTimeout time.Duration `env:"VEIL_FETCH_TIMEOUT" envDefault:"30s"`

	// Language restricts upstream results, e.g. "lang_en". Empty means no
	// restriction.
	Language string `env:"VEIL_LANGUAGE"`

	Block      string `env:"VEIL_BLOCK"`
	BlockTitle string `env:"VEIL_BLOCK_TITLE"`
	BlockURL   string `env:"VEIL_BLOCK_URL"`
	Minimal    bool   `env:"VEIL_MINIMAL"`
	NewTab     bool   `env:"VEIL_NEW_TAB"`
	AnonView   bool   `env:"VEIL_ANON_VIEW"`
	SiteAlts   bool   `env:"VEIL_SITE_ALTS"`
	NoJS       bool   `env:"VEIL_NOJS"`
	GetOnly    bool   `env:"VEIL_GET_ONLY"`

	Logger *log.Logger      `env:"-"`
	Clock  func() time.Time `env:"-"`
}

// ConfigFromEnv populates configuration from environment variables.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("proxy: parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// validate rejects unusable configuration before the server starts; nothing
// here is recoverable mid-request.
func (c Config) validate() error {
	if c.RootURL != "" {
		parsed, err := url.Parse(c.RootURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("proxy: VEIL_ROOT_URL %q is not an absolute URL", c.RootURL)
		}
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("proxy: VEIL_FETCH_TIMEOUT must be positive, got %s", c.FetchTimeout)
	}
	return nil
}

// filterDefaults translates server config into the per-session filter
// preferences handed to new sessions.
func (c Config) filterDefaults() filter.Config {
	var block []string
	for _, site := range strings.Split(c.Block, ",") {
		if site = strings.TrimSpace(site); site != "" {
			block = append(block, site)
		}
	}
	return filter.Config{
		Block:      block,
		BlockTitle: c.BlockTitle,
		BlockURL:   c.BlockURL,
		Minimal:    c.Minimal,
		NewTab:     c.NewTab,
		AnonView:   c.AnonView,
		SiteAlts:   c.SiteAlts,
		NoJS:       c.NoJS,
		GetOnly:    c.GetOnly,
	}
}

// Server ties the filter engine, bang resolver, session store, and relay
// endpoints together behind one http.Handler.
type Server struct {
	cfg      Config
	logger   *log.Logger
	sessions *sessionStore
	bangs    *bang.Store
	fetcher  *fetcher
	cache    *relayCache
}

// New builds a Server from configuration. A missing bang table file is not
// fatal: bang resolution starts empty and can be hot-loaded later.
func New(cfg Config) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	table, err := bang.LoadFile(cfg.BangFile)
	if err != nil {
		logger.Printf("bang table unavailable (%v), starting with none", err)
		table = bang.Table{}
	}
	return &Server{
		cfg:      cfg,
		logger:   logger,
		sessions: newSessionStore(cfg.filterDefaults(), cfg.Clock),
		bangs:    bang.NewStore(table),
		fetcher:  newFetcher(cfg.FetchTimeout),
		cache:    newRelayCache(cfg.Clock),
	}, nil
}

// ReloadBangs re-reads the bang table file and swaps it in atomically.
func (s *Server) ReloadBangs() error {
	table, err := bang.LoadFile(s.cfg.BangFile)
	if err != nil {
		return err
	}
	s.bangs.Reload(table)
	return nil
}

// Handler returns the routed, logged HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHome)
	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/element", s.handleElement)
	mux.HandleFunc("/window", s.handleWindow)
	mux.HandleFunc("/imgres", s.handleImgres)
	mux.HandleFunc("/autocomplete", s.handleAutocomplete)
	mux.HandleFunc("/config", s.handleConfig)
	mux.HandleFunc("/opensearch.xml", s.handleOpensearch)
	mux.HandleFunc("/healthz", s.handleHealthz)
	return withLogging(s.logger, mux)
}

// rootURL resolves the proxy's externally visible base URL for one request:
// explicit configuration wins, otherwise it is derived from the request.
func (s *Server) rootURL(r *http.Request) string {
	if s.cfg.RootURL != "" {
		return strings.TrimSuffix(s.cfg.RootURL, "/")
	}
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
