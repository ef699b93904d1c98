// Package resolver turns arbitrary post references into fetchable post ids.
package resolver

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/qepting91/reddit-top/internal/domain"
	"github.com/qepting91/reddit-top/internal/ingest"
)

var (
	// Reddit ids are lowercase base36.
	postIDRegex    = regexp.MustCompile(`^[a-z0-9]{4,10}$`)
	shareCodeRegex = regexp.MustCompile(`^[A-Za-z0-9]{4,32}$`)
)

// listing sorts that may follow a bare community path
var listingSorts = map[string]bool{"hot": true, "new": true, "top": true, "rising": true, "controversial": true}

// Parse classifies raw into one of the PostReference shapes. It never
// touches the network.
func Parse(raw string) domain.PostReference {
	s := strings.TrimSpace(raw)
	if s == "" {
		return domain.Invalid(raw)
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return domain.Invalid(raw)
	}

	segs := splitPath(u.Path)
	host := strings.ToLower(u.Hostname())

	switch {
	case host == "redd.it" || host == "www.redd.it":
		if len(segs) == 1 && postIDRegex.MatchString(segs[0]) {
			return domain.PostByID("", segs[0])
		}
	case host == "reddit.com" || strings.HasSuffix(host, ".reddit.com"):
		if ref, ok := parseRedditPath(segs); ok {
			return ref
		}
	}
	return domain.Invalid(raw)
}

func parseRedditPath(segs []string) (domain.PostReference, bool) {
	// /comments/{id}[/slug]
	if len(segs) >= 2 && segs[0] == "comments" && postIDRegex.MatchString(segs[1]) {
		return domain.PostByID("", segs[1]), true
	}
	if len(segs) < 2 || !strings.EqualFold(segs[0], "r") || !ingest.ValidName(segs[1]) {
		return domain.PostReference{}, false
	}
	community := segs[1]

	switch {
	case len(segs) == 2:
		return domain.CommunityOnly(community), true
	case len(segs) == 3 && listingSorts[strings.ToLower(segs[2])]:
		return domain.CommunityOnly(community), true
	case len(segs) >= 4 && segs[2] == "comments" && postIDRegex.MatchString(segs[3]):
		return domain.PostByID(community, segs[3]), true
	case len(segs) == 4 && segs[2] == "s" && shareCodeRegex.MatchString(segs[3]):
		return domain.PostByShortCode(community, segs[3]), true
	}
	return domain.PostReference{}, false
}

func splitPath(p string) []string {
	var segs []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}
