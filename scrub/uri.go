package scrub

import (
	"net"
	"net/url"
	"regexp"
	"strings"
)

// URI redaction leaves an inert parenthesized marker in place of the
// link and records what was removed in the run's redaction log.
//
// The scheme pattern deliberately has no leading word boundary: a
// glued prefix ("xhttps://...") must parse as an unknown scheme and be
// redacted rather than slip through as unmatched text.
var (
	schemePattern = regexp.MustCompile(`(?i)([a-z][a-z0-9+.-]*)://[^\s<>"'` + "\x60" + `\])}]+`)
	opaquePattern = regexp.MustCompile(`(?i)\b(javascript|data|vbscript):[^\s<>"'` + "\x60" + `\])}]+`)
	httpsPattern  = regexp.MustCompile(`(?i)https://[^\s<>"'` + "\x60" + `\])}]+`)
)

// redactSchemes replaces every URI that does not use https with an
// inert "(redacted)" marker. The host (or, failing that, the scheme) is
// recorded for audit. Plain colons survive: clock times, ratios,
// namespace separators, and --flag:value are not URIs.
func (s *Scrubber) redactSchemes(t string) string {
	t = schemePattern.ReplaceAllStringFunc(t, func(m string) string {
		scheme := strings.ToLower(schemePattern.FindStringSubmatch(m)[1])
		if scheme == "https" {
			return m // host allow-listing happens in redactHosts
		}
		if u, err := url.Parse(m); err == nil && u.Hostname() != "" {
			s.record(RedactedHost, strings.ToLower(u.Hostname()))
		} else {
			s.record(RedactedScheme, scheme)
		}
		return "(redacted)"
	})
	return opaquePattern.ReplaceAllStringFunc(t, func(m string) string {
		scheme := strings.ToLower(opaquePattern.FindStringSubmatch(m)[1])
		s.record(RedactedScheme, scheme)
		return "(redacted)"
	})
}

// redactHosts checks every https link's host against the allow-list and
// replaces disallowed ones with "(host/redacted)", shortening very long
// hosts for display. The full host goes to the redaction log.
func (s *Scrubber) redactHosts(t string) string {
	return httpsPattern.ReplaceAllStringFunc(t, func(m string) string {
		u, err := url.Parse(m)
		if err != nil || u.Hostname() == "" {
			s.record(RedactedScheme, "https")
			return "(redacted)"
		}
		host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
		if s.hostAllowed(host) {
			return m
		}
		s.record(RedactedHost, host)
		return "(" + shortenHost(host) + "/redacted)"
	})
}

// hostAllowed reports whether an https host may survive: it must match
// the allow-list (exactly, as a subdomain, or via a "*.domain" pattern)
// and must not be a localhost variant or a private address. Private
// hosts stay blocked even when listed.
func (s *Scrubber) hostAllowed(host string) bool {
	if host == "" || isLocalhost(host) {
		return false
	}
	if ip := net.ParseIP(host); ip != nil && isPrivateIP(ip) {
		return false
	}
	for _, d := range s.opts.AllowedDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if sub, ok := strings.CutPrefix(d, "*."); ok {
			if strings.HasSuffix(host, "."+sub) {
				return true
			}
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// hostDisplayLimit is the longest host rendered in full inside a
// redaction marker.
const hostDisplayLimit = 48

// shortenHost abbreviates hosts longer than the display limit to
// first-24 + ellipsis + last-24.
func shortenHost(host string) string {
	runes := []rune(host)
	if len(runes) <= hostDisplayLimit {
		return host
	}
	return string(runes[:24]) + "…" + string(runes[len(runes)-24:])
}

// isLocalhost checks for localhost variants
func isLocalhost(hostname string) bool {
	return hostname == "localhost" ||
		hostname == "localhost.localdomain" ||
		strings.HasSuffix(hostname, ".localhost")
}

// isPrivateIP checks if an IP is in private/special use ranges
func isPrivateIP(ip net.IP) bool {
	// RFC 1918 private networks plus loopback, link-local, and reserved
	privateBlocks := []net.IPNet{
		{IP: net.IPv4(10, 0, 0, 0), Mask: net.CIDRMask(8, 32)},
		{IP: net.IPv4(172, 16, 0, 0), Mask: net.CIDRMask(12, 32)},
		{IP: net.IPv4(192, 168, 0, 0), Mask: net.CIDRMask(16, 32)},
		{IP: net.IPv4(127, 0, 0, 0), Mask: net.CIDRMask(8, 32)},
		{IP: net.IPv4(169, 254, 0, 0), Mask: net.CIDRMask(16, 32)},
		{IP: net.IPv4(0, 0, 0, 0), Mask: net.CIDRMask(8, 32)},
		{IP: net.IPv4(224, 0, 0, 0), Mask: net.CIDRMask(4, 32)},
		{IP: net.IPv4(240, 0, 0, 0), Mask: net.CIDRMask(4, 32)},
	}

	if ip4 := ip.To4(); ip4 != nil {
		for _, block := range privateBlocks {
			if block.Contains(ip4) {
				return true
			}
		}
		return false
	}

	if len(ip) == net.IPv6len {
		if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsMulticast() || ip.IsUnspecified() {
			return true
		}

		// Unique local addresses (fc00::/7), the v6 equivalent of RFC 1918
		if (ip[0] & 0xfe) == 0xfc {
			return true
		}

		// Site-local (fec0::/10), deprecated but still blocked
		if ip[0] == 0xfe && (ip[1]&0xc0) == 0xc0 {
			return true
		}

		// Documentation prefix (2001:db8::/32)
		if ip[0] == 0x20 && ip[1] == 0x01 && ip[2] == 0x0d && ip[3] == 0xb8 {
			return true
		}
	}

	return false
}
