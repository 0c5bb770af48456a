// Package fingerprint turns raw request metadata into a normalized
// client fingerprint: OS, browser, client application, network origin
// and an identity key used for correlation.
package fingerprint

import (
	"net"
	"net/http"
	"regexp"
	"strings"
)

// Unknown is the sentinel for any field the extractor could not
// determine. Downstream logic matches on this value, never on "".
const Unknown = "unknown"

// Fingerprint is the normalized view of a single client request.
type Fingerprint struct {
	OSName         string
	OSVersion      string
	BrowserName    string
	BrowserVersion string
	ClientApp      string
	ClientBuild    string
	IsProxy        bool
	IsTor          bool
	Country        string
	City           string
	ASN            string
	ISP            string
}

// clientAppRules are ordered most-specific first; the first match wins.
// Office applications identify themselves before any browser token, so
// "Word/16.0" must be checked before falling through to "Windows".
var clientAppRules = []struct {
	re    *regexp.Regexp
	app   string
	exact bool // app name comes from the capture group instead
}{
	{re: regexp.MustCompile(`(?i)Word[/\s]*([\d.]+)?`), app: "Microsoft Word"},
	{re: regexp.MustCompile(`(?i)Excel[/\s]*([\d.]+)?`), app: "Microsoft Excel"},
	{re: regexp.MustCompile(`(?i)PowerPoint[/\s]*([\d.]+)?`), app: "Microsoft PowerPoint"},
	{re: regexp.MustCompile(`(?i)Microsoft Office[/\s]*([\d.]+)?`), app: "Microsoft Office"},
	{re: regexp.MustCompile(`Acrobat[/\s]*([\d.]+)?`), app: "Adobe Acrobat"},
	{re: regexp.MustCompile(`Outlook[/\s-]*([\d.]+)?`), app: "Microsoft Outlook"},
}

var osRules = []struct {
	contains string
	name     string
	version  string
	verRe    *regexp.Regexp
	fixup    func(string) string
}{
	{contains: "Windows NT 10", name: "Windows", version: "10/11"},
	{contains: "Windows NT 6.3", name: "Windows", version: "8.1"},
	{contains: "Windows NT 6.1", name: "Windows", version: "7"},
	{contains: "Windows", name: "Windows"},
	// Android carries a Linux token, so it must come first.
	{contains: "Android", name: "Android", verRe: regexp.MustCompile(`Android ([\d.]+)`)},
	{contains: "iPhone", name: "iOS", verRe: regexp.MustCompile(`OS ([\d_]+)`), fixup: underscoreToDot},
	{contains: "iPad", name: "iOS", verRe: regexp.MustCompile(`OS ([\d_]+)`), fixup: underscoreToDot},
	{contains: "Mac OS X", name: "macOS", verRe: regexp.MustCompile(`Mac OS X ([\d_]+)`), fixup: underscoreToDot},
	{contains: "Linux", name: "Linux"},
}

var browserRules = []struct {
	name  string
	match func(string) bool
	verRe *regexp.Regexp
}{
	{name: "Edge", match: func(ua string) bool { return strings.Contains(ua, "Edg") }, verRe: regexp.MustCompile(`Edg/([\d.]+)`)},
	{name: "Chrome", match: func(ua string) bool { return strings.Contains(ua, "Chrome") }, verRe: regexp.MustCompile(`Chrome/([\d.]+)`)},
	{name: "Firefox", match: func(ua string) bool { return strings.Contains(ua, "Firefox") }, verRe: regexp.MustCompile(`Firefox/([\d.]+)`)},
	{name: "Safari", match: func(ua string) bool { return strings.Contains(ua, "Safari") }, verRe: regexp.MustCompile(`Version/([\d.]+)`)},
}

func underscoreToDot(s string) string { return strings.ReplaceAll(s, "_", ".") }

// ParseUserAgent extracts OS, browser and client application from a
// user-agent string. Fields that cannot be determined are set to
// Unknown; an empty or unparseable string never raises.
func ParseUserAgent(ua string) Fingerprint {
	fp := Fingerprint{
		OSName:         Unknown,
		OSVersion:      Unknown,
		BrowserName:    Unknown,
		BrowserVersion: Unknown,
		ClientApp:      Unknown,
		ClientBuild:    Unknown,
		Country:        Unknown,
		City:           Unknown,
		ASN:            Unknown,
		ISP:            Unknown,
	}
	if ua == "" {
		return fp
	}

	for _, rule := range clientAppRules {
		m := rule.re.FindStringSubmatch(ua)
		if m == nil {
			continue
		}
		fp.ClientApp = rule.app
		if len(m) > 1 && m[1] != "" {
			fp.ClientBuild = m[1]
		}
		break
	}

	for _, rule := range osRules {
		if !strings.Contains(ua, rule.contains) {
			continue
		}
		fp.OSName = rule.name
		if rule.version != "" {
			fp.OSVersion = rule.version
		} else if rule.verRe != nil {
			if m := rule.verRe.FindStringSubmatch(ua); m != nil {
				v := m[1]
				if rule.fixup != nil {
					v = rule.fixup(v)
				}
				fp.OSVersion = v
			}
		}
		break
	}

	// Browser detection is skipped when a client application already
	// matched; an Office UA's embedded browser tokens are noise.
	if fp.ClientApp == Unknown {
		for _, rule := range browserRules {
			if !rule.match(ua) {
				continue
			}
			fp.BrowserName = rule.name
			if m := rule.verRe.FindStringSubmatch(ua); m != nil {
				fp.BrowserVersion = m[1]
			}
			break
		}
	}

	return fp
}

// ClientIP extracts the real client address, preferring proxy headers
// over the socket address.
func ClientIP(headers http.Header, remoteAddr string) string {
	if fwd := headers.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if real := headers.Get("X-Real-Ip"); real != "" {
		return strings.TrimSpace(real)
	}
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

// Extract builds a full Fingerprint from request headers plus the
// resolved client IP. Geo, ASN and proxy signals come from the given
// resolver; a nil resolver or a failed lookup leaves those fields at
// Unknown.
func Extract(headers http.Header, ip string, resolver Resolver) Fingerprint {
	fp := ParseUserAgent(headers.Get("User-Agent"))
	if resolver == nil || ip == "" {
		return fp
	}

	info, err := resolver.Lookup(ip)
	if err != nil {
		return fp
	}
	if info.Country != "" {
		fp.Country = info.Country
	}
	if info.City != "" {
		fp.City = info.City
	}
	if info.ASN != "" {
		fp.ASN = info.ASN
	}
	if info.ISP != "" {
		fp.ISP = info.ISP
	}
	fp.IsProxy = info.IsProxy
	fp.IsTor = info.IsTor
	return fp
}
