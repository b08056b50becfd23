package resolver

import (
	"strings"

	"voicelink/internal/domain"
)

// truncatedNameLen is the short-name length limit imposed by the process
// table; names at exactly this length are assumed to be cut off.
const truncatedNameLen = 15

// nameStrategy maps a process name to a bundle identifier against a fixed
// candidate list. Strategies are pure so each stays unit-testable against a
// fixture list of installed applications.
type nameStrategy struct {
	name  string
	match func(apps []domain.AppInfo, processName string) (string, bool)
}

func nameStrategies() []nameStrategy {
	return []nameStrategy{
		{"process_name_exact", matchExactName},
		{"process_name_truncated_prefix", matchTruncatedPrefix},
		{"process_name_display_name", matchDisplayName},
		{"process_name_relaxed", matchRelaxed},
	}
}

func matchExactName(apps []domain.AppInfo, processName string) (string, bool) {
	for _, app := range apps {
		if strings.EqualFold(app.Name, processName) && app.BundleID != "" {
			return app.BundleID, true
		}
	}
	return "", false
}

// matchTruncatedPrefix handles names cut off by the OS short-name limit:
// a 15-character name is matched as a prefix of the full application name.
func matchTruncatedPrefix(apps []domain.AppInfo, processName string) (string, bool) {
	if len(processName) != truncatedNameLen {
		return "", false
	}
	lower := strings.ToLower(processName)
	for _, app := range apps {
		if strings.HasPrefix(strings.ToLower(app.Name), lower) && app.BundleID != "" {
			return app.BundleID, true
		}
	}
	return "", false
}

// matchDisplayName checks the alternate internal name field, which can
// differ from the package name entirely.
func matchDisplayName(apps []domain.AppInfo, processName string) (string, bool) {
	for _, app := range apps {
		if app.DisplayName != "" && strings.EqualFold(app.DisplayName, processName) && app.BundleID != "" {
			return app.BundleID, true
		}
	}
	return "", false
}

// matchRelaxed is the last resort: case-insensitive token and substring
// containment against both name fields.
func matchRelaxed(apps []domain.AppInfo, processName string) (string, bool) {
	needle := strings.ToLower(strings.TrimSpace(processName))
	if needle == "" {
		return "", false
	}
	tokens := strings.Fields(needle)

	for _, app := range apps {
		if app.BundleID == "" {
			continue
		}
		for _, field := range []string{strings.ToLower(app.Name), strings.ToLower(app.DisplayName)} {
			if field == "" {
				continue
			}
			if strings.Contains(field, needle) || strings.Contains(needle, field) {
				return app.BundleID, true
			}
			if containsAllTokens(field, tokens) {
				return app.BundleID, true
			}
		}
	}
	return "", false
}

func containsAllTokens(field string, tokens []string) bool {
	if len(tokens) == 0 {
		return false
	}
	for _, token := range tokens {
		if !strings.Contains(field, token) {
			return false
		}
	}
	return true
}
