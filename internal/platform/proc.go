package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ProcTable reads process identity from procfs.
type ProcTable struct {
	root string
}

func NewProcTable() *ProcTable {
	return &ProcTable{root: "/proc"}
}

// ExecutablePath resolves the exe symlink, falling back to the first cmdline
// argument when the link is unreadable (different-owner processes).
func (p *ProcTable) ExecutablePath(pid int) (string, error) {
	if pid <= 0 {
		return "", fmt.Errorf("invalid pid %d", pid)
	}
	base := filepath.Join(p.root, strconv.Itoa(pid))

	if exe, err := os.Readlink(filepath.Join(base, "exe")); err == nil {
		return exe, nil
	}

	raw, err := os.ReadFile(filepath.Join(base, "cmdline"))
	if err != nil {
		return "", fmt.Errorf("process %d not found: %w", pid, err)
	}
	args := strings.Split(string(raw), "\x00")
	if len(args) == 0 || args[0] == "" {
		return "", fmt.Errorf("process %d has no command line", pid)
	}
	return args[0], nil
}

// ShortName returns the kernel comm name, truncated by the kernel to 15
// characters.
func (p *ProcTable) ShortName(pid int) (string, error) {
	if pid <= 0 {
		return "", fmt.Errorf("invalid pid %d", pid)
	}
	raw, err := os.ReadFile(filepath.Join(p.root, strconv.Itoa(pid), "comm"))
	if err != nil {
		return "", fmt.Errorf("process %d not found: %w", pid, err)
	}
	return strings.TrimSpace(string(raw)), nil
}
