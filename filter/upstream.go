package filter

import "github.com/andybalholm/cascadia"

// Everything in this file is coupled to the upstream search engine's markup
// and URL shape. The obfuscated class names and marker substrings below were
// found empirically and break silently when upstream changes its output;
// keeping them in one table makes the coupling auditable and updatable.

const (
	// originPrefix is the canonical host prefix stripped from result hrefs
	// to obtain their normalized relative form.
	originPrefix = "https://www.google.com"

	// originHost is where engine-native destinations (language tools,
	// account pages) are forwarded back to.
	originHost = "https://google.com"

	// signInPrefix marks the origin's sign-in flow; such links are removed.
	signInPrefix = "https://accounts.google.com"

	// mapsURL is the base for rebuilt map links.
	mapsURL = "https://maps.google.com/maps"

	// searchURL is the upstream query endpoint (basic-HTML variant).
	searchURL = "https://www.google.com/search?gbv=1&q="

	// exactPhraseMarker appears in hrefs whose query should be interpreted
	// verbatim; the rewritten query is wrapped in double quotes.
	exactPhraseMarker = "li:1"

	// spellCorrectionMarker identifies spelling-suggestion links that must
	// keep their internal path form.
	spellCorrectionMarker = "spell=1"

	// externalServiceMarker flags result blocks removed entirely in
	// reduced-verbosity mode.
	externalServiceMarker = "Twitter ›"

	// brand asset locations, special-cased to the proxy's own branding.
	brandImagePrefix   = "/images/branding/searchlogo"
	brandLogoPrefix    = brandImagePrefix + "_desk"
	brandMiniLogoURL   = "https://www.gstatic.com/m/images/icons/googleg"
	brandStaticHost    = "www.gstatic.com"
	languageConfigPath = "google.com/preferences?hl="

	// blankPixel replaces brand imagery that has no proxy-side analog.
	blankPixel = "data:image/png;base64," +
		"iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII="
)

// upstreamClasses are the obfuscated CSS class names referenced by the
// rewrite passes.
type upstreamClasses struct {
	ResultA   string // primary result container
	ResultB   string // secondary result container
	MainTab   string // results-type tab strip on the main page
	ImagesTab string // tab strip variant on the images page
	Footer    string // footer-like container class
}

var classes = upstreamClasses{
	ResultA:   "ZINbbc",
	ResultB:   "luh4td",
	MainTab:   "KP7LCb",
	ImagesTab: "uZgmoc",
	Footer:    "TuS8Ad",
}

// unsupportedPages lists destinations this proxy does not reimplement:
// internal account/settings/policy pages plus the shopping-tab marker.
var unsupportedPages = []string{
	"support.google.com",
	"accounts.google.com",
	"policies.google.com",
	"google.com/preferences",
	"google.com/intl",
	"advanced_search",
	"tbm=shop",
}

// resultParams is the allow-list of auxiliary query parameters copied
// verbatim into rewritten search links: result type, time range, pagination
// offset, locality. Everything else is assumed to be tracking noise.
var resultParams = []string{"tbs", "tbm", "start", "near"}

// mapsParams are the location-bearing arguments recognized in map hrefs.
var mapsParams = []string{"q", "daddr"}

// trackingArgs are stripped from external destination URLs. Prefix matching
// handles the utm_* family.
var trackingArgs = []string{"ref_src", "ved", "ei", "sa", "usg", "source", "cd"}
var trackingArgPrefixes = []string{"utm"}

// adMarkers are the localized "this is an ad" span texts; a result block
// containing one is removed wholesale.
var adMarkers = []string{
	"ad", "ads", "anuncio", "annuncio", "annonce", "Anzeige", "广告", "廣告",
	"Reklama", "Реклама", "Anunț", "광고", "annons", "Annonse", "Iklan",
	"広告", "Augl.", "Mainos", "Advertentie", "إعلان", "Գովազդ", "विज्ञापन",
	"Reklam", "آگهی", "Reklāma", "Reklaam", "Διαφήμιση", "מודעה", "Hirdetés",
	"Reclamă",
}

// adInfoMarker is the circled-i glyph upstream attaches to ad disclosures.
const adInfoMarker = "ⓘ"

// minimalSections are auxiliary sections removed (not collapsed) in
// reduced-verbosity mode, identified by label substring.
var minimalSections = []string{"Top stories", "Images", "People also ask"}

// relativePrefixes are engine paths served by this proxy itself and passed
// through as relative references.
var relativePrefixes = []string{"/?", "/search?", "/imgres?"}

// defaultSiteAlts maps recognized services to privacy-respecting mirrors.
// Operators may override the mapping per deployment.
var defaultSiteAlts = map[string]string{
	"twitter.com":          "farside.link/nitter",
	"youtube.com":          "farside.link/invidious",
	"instagram.com":        "farside.link/bibliogram/u",
	"reddit.com":           "farside.link/libreddit",
	"imgur.com":            "farside.link/rimgo",
	"translate.google.com": "farside.link/lingva",
	"medium.com":           "farside.link/scribe",
}

// Precompiled selectors used by the whole-tree passes.
var (
	selMain      = cascadia.MustCompile("div#main")
	selDivs      = cascadia.MustCompile("div")
	selSpans     = cascadia.MustCompile("span")
	selHeadings  = cascadia.MustCompile("h3")
	selAnchors   = cascadia.MustCompile("a[href]")
	selStyles    = cascadia.MustCompile("style")
	selScripts   = cascadia.MustCompile("script")
	selButtons   = cascadia.MustCompile("button")
	selSVGs      = cascadia.MustCompile("svg")
	selMainTabs  = cascadia.MustCompile("div." + classes.MainTab)
	selImageTabs = cascadia.MustCompile("div." + classes.ImagesTab)
)
