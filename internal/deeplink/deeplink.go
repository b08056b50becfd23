// Package deeplink parses voicelink:// URLs into an intent route and the
// return target of the application that launched the host.
package deeplink

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"voicelink/internal/domain"
)

const Scheme = "voicelink"

// Route names the action a deep link requests.
type Route string

const (
	RouteVoice        Route = "voice"
	RouteVoiceControl Route = "voice-control"
	RouteSettings     Route = "settings"
)

// Link is a parsed deep link.
type Link struct {
	Route   Route
	Payload string
	Target  domain.ReturnTarget
}

// Intent converts the link into the mailbox intent it represents.
func (l Link) Intent(now time.Time) domain.PendingIntent {
	kind := domain.IntentKindVoice
	switch l.Route {
	case RouteVoiceControl:
		kind = domain.IntentKindVoiceControl
	case RouteSettings:
		kind = domain.IntentKindSettings
	}
	return domain.PendingIntent{Kind: kind, Payload: l.Payload, CreatedAt: now}
}

// Parse interprets a voicelink://<route>?... URL. Unknown query parameters
// are ignored; a malformed PID invalidates only the PID hint, not the link.
func Parse(raw string) (Link, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Link{}, fmt.Errorf("invalid deep link %q: %w", raw, err)
	}
	if u.Scheme != Scheme {
		return Link{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	route, err := parseRoute(u)
	if err != nil {
		return Link{}, err
	}

	query := u.Query()
	target := domain.ReturnTarget{
		BundleID:    strings.TrimSpace(query.Get("hostBundle")),
		ProcessName: strings.TrimSpace(query.Get("hostProcessName")),
	}
	if rawPID := query.Get("hostPID"); rawPID != "" {
		if pid, err := strconv.Atoi(rawPID); err == nil && pid > 0 {
			target.PID = pid
		}
	}
	if !target.IsZero() {
		target.CapturedAt = time.Now()
	}

	return Link{
		Route:   route,
		Payload: strings.TrimSpace(query.Get("payload")),
		Target:  target,
	}, nil
}

func parseRoute(u *url.URL) (Route, error) {
	// voicelink://voice parses with the route as host; voicelink:///voice
	// puts it in the path. Accept both.
	name := u.Host
	if name == "" {
		name = strings.Trim(u.Path, "/")
	}
	switch Route(name) {
	case RouteVoice, RouteVoiceControl, RouteSettings:
		return Route(name), nil
	}
	return "", fmt.Errorf("unknown deep link route %q", name)
}
