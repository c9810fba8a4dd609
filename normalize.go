package main

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// normalizeTitle folds a title for duplicate comparison: Unicode NFKC, case
// folded, inner whitespace collapsed.
func normalizeTitle(title string) string {
	folded := strings.ToLower(norm.NFKC.String(strings.TrimSpace(title)))
	return strings.Join(strings.Fields(folded), " ")
}

// trackingParams are stripped before URL comparison; they vary per visit while
// pointing at the same content.
var trackingParams = map[string]struct{}{
	"fbclid":  {},
	"gclid":   {},
	"igshid":  {},
	"mc_cid":  {},
	"mc_eid":  {},
	"ref":     {},
	"ref_src": {},
	"si":      {},
	"spm":     {},
}

func isTrackingParam(key string) bool {
	if strings.HasPrefix(strings.ToLower(key), "utm_") {
		return true
	}
	_, ok := trackingParams[strings.ToLower(key)]
	return ok
}

// normalizeSourceURL produces the canonical comparison form of a link:
// tracking parameters dropped, YouTube links collapsed to their video id.
func normalizeSourceURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	if videoID := youtubeVideoID(trimmed); videoID != "" {
		return "https://www.youtube.com/watch?v=" + videoID
	}

	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" {
		return strings.ToLower(trimmed)
	}

	query := parsed.Query()
	for key := range query {
		if isTrackingParam(key) {
			query.Del(key)
		}
	}
	parsed.RawQuery = query.Encode()
	parsed.Fragment = ""
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	return strings.TrimSuffix(parsed.String(), "/")
}

var youtubeIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// youtubeVideoID extracts the canonical 11-character video id from any of the
// link shapes YouTube serves (watch, short link, shorts, embed).
func youtubeVideoID(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Host == "" {
		return ""
	}

	host := strings.ToLower(strings.TrimPrefix(parsed.Host, "www."))
	switch host {
	case "youtu.be":
		candidate := strings.Trim(parsed.Path, "/")
		if youtubeIDRe.MatchString(candidate) {
			return candidate
		}
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		if candidate := parsed.Query().Get("v"); youtubeIDRe.MatchString(candidate) {
			return candidate
		}
		parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
		if len(parts) == 2 && (parts[0] == "shorts" || parts[0] == "embed" || parts[0] == "live") {
			if youtubeIDRe.MatchString(parts[1]) {
				return parts[1]
			}
		}
	}
	return ""
}

var unsafeFilenameRe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func sanitizeFilename(name string) string {
	cleaned := unsafeFilenameRe.ReplaceAllString(norm.NFKC.String(strings.TrimSpace(name)), "_")
	cleaned = strings.Trim(cleaned, "._-")
	if len(cleaned) > 60 {
		cleaned = cleaned[:60]
	}
	if cleaned == "" {
		cleaned = "notebook"
	}
	return cleaned
}

// exportFileName composes <title>_<category>_<timestamp>.<ext>.
func exportFileName(notebookTitle, category, ext string, now time.Time) string {
	stamp := utcNowOr(now).Format("20060102-150405")
	return sanitizeFilename(notebookTitle) + "_" + category + "_" + stamp + "." + ext
}
