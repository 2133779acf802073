package artifacts

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/wingman-cli/api/schemas"
)

// PacketLog is the append-only JSONL record of decision cycles. Each Append
// writes one self-contained line in a single syscall, so a crash mid-write
// can truncate at most the final line and never corrupts earlier ones.
type PacketLog struct {
	mu    sync.Mutex
	f     *os.File
	path  string
	count int
}

// OpenPacketLog opens (or creates) the packet log at path for appending.
func OpenPacketLog(path string) (*PacketLog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating packet log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening packet log %s: %w", path, err)
	}
	return &PacketLog{f: f, path: path}, nil
}

// Append writes one packet as a JSON line.
func (l *PacketLog) Append(p *schemas.Packet) error {
	line, err := json.ConfigCompatibleWithStandardLibrary.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshaling packet: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return fmt.Errorf("packet log %s is closed", l.path)
	}
	if _, err := l.f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("appending to packet log %s: %w", l.path, err)
	}
	l.count++
	return nil
}

// Count returns how many packets this handle has appended.
func (l *PacketLog) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Path returns the log's location on disk.
func (l *PacketLog) Path() string { return l.path }

// Close releases the underlying file. Safe to call more than once.
func (l *PacketLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	if err != nil {
		return fmt.Errorf("closing packet log %s: %w", l.path, err)
	}
	return nil
}

// ReadPacketLog loads every packet from a run's log. Blank and malformed
// lines (a truncated tail after a crash) are skipped and counted rather than
// failing the whole read.
func ReadPacketLog(path string) ([]schemas.Packet, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("opening packet log: %w", err)
	}
	defer f.Close()

	var (
		packets []schemas.Packet
		skipped int
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var p schemas.Packet
		if err := json.ConfigCompatibleWithStandardLibrary.Unmarshal(line, &p); err != nil {
			skipped++
			continue
		}
		packets = append(packets, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("scanning packet log %s: %w", path, err)
	}
	return packets, skipped, nil
}

// WriteRunSummary writes the single structured action log for a finished run.
func WriteRunSummary(path string, summary *schemas.RunSummary) error {
	data, err := json.ConfigCompatibleWithStandardLibrary.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling run summary: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing run summary %s: %w", path, err)
	}
	return nil
}
