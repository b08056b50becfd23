package platform

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"voicelink/internal/domain"
)

// DesktopAppDirectory lists installed applications from freedesktop
// .desktop entries and running ones from the process table. The desktop-file
// id (file name without extension) plays the role of the bundle identifier.
type DesktopAppDirectory struct {
	dirs     []string
	procRoot string
}

func NewDesktopAppDirectory(dirs []string) *DesktopAppDirectory {
	return &DesktopAppDirectory{dirs: dirs, procRoot: "/proc"}
}

func (d *DesktopAppDirectory) InstalledApps() []domain.AppInfo {
	var apps []domain.AppInfo
	seen := map[string]bool{}

	for _, dir := range d.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".desktop") {
				continue
			}
			id := strings.TrimSuffix(entry.Name(), ".desktop")
			if seen[id] {
				// Earlier dirs win; per-user entries are listed first.
				continue
			}
			app, ok := parseDesktopFile(filepath.Join(dir, entry.Name()), id)
			if !ok {
				continue
			}
			seen[id] = true
			apps = append(apps, app)
		}
	}
	return apps
}

// RunningApps cross-references installed entries against live processes by
// executable base name.
func (d *DesktopAppDirectory) RunningApps() []domain.AppInfo {
	installed := d.InstalledApps()
	byExec := map[string][]int{}

	entries, err := os.ReadDir(d.procRoot)
	if err != nil {
		return nil
	}
	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		exe, err := os.Readlink(filepath.Join(d.procRoot, entry.Name(), "exe"))
		if err != nil {
			continue
		}
		base := filepath.Base(exe)
		byExec[base] = append(byExec[base], pid)
	}

	var running []domain.AppInfo
	for _, app := range installed {
		if app.ExecPath == "" {
			continue
		}
		pids := byExec[filepath.Base(app.ExecPath)]
		if len(pids) == 0 {
			continue
		}
		app.PID = pids[0]
		running = append(running, app)
	}
	return running
}

// parseDesktopFile extracts the fields resolution cares about from the
// [Desktop Entry] section. StartupWMClass doubles as the alternate display
// name a window manager would report.
func parseDesktopFile(path, id string) (domain.AppInfo, bool) {
	file, err := os.Open(path)
	if err != nil {
		return domain.AppInfo{}, false
	}
	defer file.Close()

	app := domain.AppInfo{BundleID: id}
	inEntry := false

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "" || strings.HasPrefix(line, "#"):
			continue
		case strings.HasPrefix(line, "["):
			inEntry = line == "[Desktop Entry]"
			continue
		case !inEntry:
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		switch strings.TrimSpace(key) {
		case "Name":
			if app.Name == "" {
				app.Name = strings.TrimSpace(value)
			}
		case "StartupWMClass":
			app.DisplayName = strings.TrimSpace(value)
		case "Exec":
			app.ExecPath = execPath(value)
		case "NoDisplay":
			if strings.EqualFold(strings.TrimSpace(value), "true") {
				return domain.AppInfo{}, false
			}
		}
	}
	if app.Name == "" {
		return domain.AppInfo{}, false
	}
	return app, true
}

// execPath strips field codes (%u, %F, ...) and arguments from an Exec line.
func execPath(value string) string {
	fields := strings.Fields(strings.TrimSpace(value))
	for _, field := range fields {
		if strings.HasPrefix(field, "%") {
			continue
		}
		// env VAR=... prefixes precede the real binary.
		if field == "env" || strings.Contains(field, "=") {
			continue
		}
		return field
	}
	return ""
}
