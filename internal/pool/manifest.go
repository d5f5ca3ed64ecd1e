package pool

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Manifest is an append-only log of spawned stdio child processes, written
// so that a crashed broker's orphaned children can be swept on the next
// startup. Each line is a plain shell command a recovery script can feed to
// sh -c, e.g. "kill 48213".
type Manifest struct {
	mu   sync.Mutex
	file *os.File
}

// OpenManifest opens (creating if necessary) the manifest file at path for
// appending.
func OpenManifest(path string) (*Manifest, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("pool: open manifest %s: %w", path, err)
	}
	return &Manifest{file: f}, nil
}

// RecordSpawn appends a "# spawned <providerName>" comment line, a
// breadcrumb for manual cleanup that ParseManifest skips. Kill lines are
// written by RecordPID.
func (m *Manifest) RecordSpawn(providerName string) error {
	return m.recordLine(fmt.Sprintf("# spawned %s\n", providerName))
}

// RecordPID appends a kill line for a specific child process ID.
func (m *Manifest) RecordPID(pid int) error {
	return m.recordLine(fmt.Sprintf("kill %d\n", pid))
}

func (m *Manifest) recordLine(line string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w := bufio.NewWriter(m.file)
	if _, err := w.WriteString(line); err != nil {
		return fmt.Errorf("pool: write manifest: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("pool: flush manifest: %w", err)
	}
	return m.file.Sync()
}

// Close flushes and closes the manifest file.
func (m *Manifest) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.file.Close()
}

// ParseManifest parses a manifest file's contents into a list of cleanup
// commands, in file order. Blank lines and lines starting with "#" (the
// bookkeeping comments RecordSpawn writes) are skipped; surrounding
// whitespace on each remaining line is trimmed.
//
// This repo is not the crash-recovery supervisor — that is a separate,
// dedicated process watching over the broker, the same way the original
// system's cleanup sweep is its own binary rather than code inside the
// server it's cleaning up after. ParseManifest exists here because the
// manifest format is owned by this package; the supervisor links it in
// rather than re-implementing the parser.
func ParseManifest(contents string) []string {
	var commands []string
	for _, line := range strings.Split(contents, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		commands = append(commands, line)
	}
	return commands
}
