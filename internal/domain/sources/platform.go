// Package sources recognizes the hosted-video platforms a run can download from.
package sources

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

type Platform string

const (
	YouTube Platform = "youtube"
	Twitch  Platform = "twitch"
)

var ErrUnsupported = errors.New("unsupported source url")

var (
	reYouTubeID   = regexp.MustCompile(`(?:v=|youtu\.be/|embed/|shorts/|/v/)([A-Za-z0-9_-]{11})`)
	reTwitchVOD   = regexp.MustCompile(`^/videos/(\d+)/?$`)
	reTwitchClip  = regexp.MustCompile(`^/[A-Za-z0-9_]+/clip/([A-Za-z0-9_-]+)/?$`)
	reTwitchClips = regexp.MustCompile(`^/([A-Za-z0-9_-]+)/?$`)
)

var youtubeHosts = map[string]struct{}{
	"youtube.com":              {},
	"www.youtube.com":          {},
	"m.youtube.com":            {},
	"music.youtube.com":        {},
	"youtu.be":                 {},
	"youtube-nocookie.com":     {},
	"www.youtube-nocookie.com": {},
}

type Resolved struct {
	Platform Platform
	ID       string
	URL      string
}

// Resolve maps a raw URL to its platform and canonical download URL.
func Resolve(raw string) (Resolved, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Resolved{}, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return Resolved{}, fmt.Errorf("%w: scheme %q", ErrUnsupported, u.Scheme)
	}
	host := strings.ToLower(u.Hostname())

	if _, ok := youtubeHosts[host]; ok {
		m := reYouTubeID.FindStringSubmatch(u.String())
		if m == nil {
			return Resolved{}, fmt.Errorf("%w: no video id in %q", ErrUnsupported, raw)
		}
		return Resolved{Platform: YouTube, ID: m[1], URL: "https://www.youtube.com/watch?v=" + m[1]}, nil
	}

	switch host {
	case "twitch.tv", "www.twitch.tv", "m.twitch.tv":
		if m := reTwitchVOD.FindStringSubmatch(u.Path); m != nil {
			return Resolved{Platform: Twitch, ID: m[1], URL: "https://www.twitch.tv/videos/" + m[1]}, nil
		}
		if m := reTwitchClip.FindStringSubmatch(u.Path); m != nil {
			return Resolved{Platform: Twitch, ID: m[1], URL: "https://clips.twitch.tv/" + m[1]}, nil
		}
		// channel pages are live streams, not VODs
		return Resolved{}, fmt.Errorf("%w: twitch url is not a vod or clip", ErrUnsupported)
	case "clips.twitch.tv":
		if m := reTwitchClips.FindStringSubmatch(u.Path); m != nil {
			return Resolved{Platform: Twitch, ID: m[1], URL: "https://clips.twitch.tv/" + m[1]}, nil
		}
	}
	return Resolved{}, fmt.Errorf("%w: host %q", ErrUnsupported, host)
}
