// Package artifacts persists the on-disk record of a run: per-cycle page
// source and screenshot snapshots, the append-only packet log, and the final
// run summary. It also hosts the offline extraction job that turns a
// directory of captured artifacts back into normalized JSONL rows.
package artifacts

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wingman-cli/api/schemas"
)

// timestampTag formats t as 20060102-150405-micros, the compact form every
// artifact filename embeds. parseArtifactTimestamp reverses it.
func timestampTag(t time.Time) string {
	return t.Format("20060102-150405") + fmt.Sprintf("-%06d", t.Nanosecond()/1000)
}

// parseArtifactTimestamp parses a timestampTag string back into a local
// time. Returns false for anything that does not match the layout.
func parseArtifactTimestamp(s string) (time.Time, bool) {
	if len(s) != 22 || s[8] != '-' || s[15] != '-' {
		return time.Time{}, false
	}
	base, err := time.ParseInLocation("20060102-150405", s[:15], time.Local)
	if err != nil {
		return time.Time{}, false
	}
	micros, err := strconv.Atoi(s[16:])
	if err != nil || micros < 0 {
		return time.Time{}, false
	}
	return base.Add(time.Duration(micros) * time.Microsecond), true
}

// RunTag names the artifact namespace for one run: start timestamp plus a
// short run id prefix, e.g. "20260825-153000-123456_a1b2c3d4".
func RunTag(start time.Time, runID string) string {
	short := runID
	if len(short) > 8 {
		short = short[:8]
	}
	if short == "" {
		return timestampTag(start)
	}
	return timestampTag(start) + "_" + short
}

// Store persists snapshot artifacts for a single run. Per-cycle page source
// and screenshots land under <base>/decision_packets/<tag>/, loose snapshots
// (post-action captures) under <base> with a timestamp suffix. All methods
// return an ArtifactRef suitable for embedding in the packet log.
type Store struct {
	base     string
	dir      string
	tag      string
	compress bool
	logger   *zap.Logger
	now      func() time.Time
}

// NewStore creates the per-run directory layout under baseDir. When compress
// is set, page-source dumps are written brotli-compressed as .xml.br.
func NewStore(baseDir, runTag string, compress bool, logger *zap.Logger) (*Store, error) {
	if baseDir == "" {
		return nil, &schemas.ConfigError{Field: "capture.artifacts_dir", Reason: "artifacts directory is required"}
	}
	dir := filepath.Join(baseDir, "decision_packets", runTag)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact directory %s: %w", dir, err)
	}
	return &Store{
		base:     baseDir,
		dir:      dir,
		tag:      runTag,
		compress: compress,
		logger:   logger.Named("artifacts"),
		now:      time.Now,
	}, nil
}

// Dir returns the per-run snapshot directory.
func (s *Store) Dir() string { return s.dir }

// PacketLogPath returns where this run's packet JSONL belongs.
func (s *Store) PacketLogPath() string {
	return filepath.Join(s.base, fmt.Sprintf("run_%s_packets.jsonl", s.tag))
}

// SummaryPath returns where this run's final summary JSON belongs.
func (s *Store) SummaryPath() string {
	return filepath.Join(s.base, fmt.Sprintf("run_%s_summary.json", s.tag))
}

// SaveXML persists one cycle's raw page source as packet_NNNN.xml, or
// packet_NNNN.xml.br when compression is on.
func (s *Store) SaveXML(cycle int, raw string) (*schemas.ArtifactRef, error) {
	name := fmt.Sprintf("packet_%04d.xml", cycle)
	if !s.compress {
		path := filepath.Join(s.dir, name)
		if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
			return nil, fmt.Errorf("writing page source artifact: %w", err)
		}
		return &schemas.ArtifactRef{Path: path}, nil
	}

	path := filepath.Join(s.dir, name+".br")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating page source artifact: %w", err)
	}
	w := brotli.NewWriter(f)
	if _, err := w.Write([]byte(raw)); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("compressing page source artifact: %w", err)
	}
	if err := w.Close(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("flushing page source artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("closing page source artifact: %w", err)
	}
	return &schemas.ArtifactRef{Path: path, Compressed: true}, nil
}

// SaveScreenshot persists one cycle's screenshot as packet_NNNN.png.
func (s *Store) SaveScreenshot(cycle int, png []byte) (*schemas.ArtifactRef, error) {
	path := filepath.Join(s.dir, fmt.Sprintf("packet_%04d.png", cycle))
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return nil, fmt.Errorf("writing screenshot artifact: %w", err)
	}
	return &schemas.ArtifactRef{Path: path}, nil
}

// SaveSnapshot writes a loose timestamp-suffixed screenshot under the base
// artifacts directory. The offline extractor pairs these with page-source
// dumps by stem and nearest timestamp.
func (s *Store) SaveSnapshot(stem string, png []byte) (*schemas.ArtifactRef, error) {
	name := fmt.Sprintf("%s_%s.png", stem, timestampTag(s.now()))
	path := filepath.Join(s.base, name)
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return nil, fmt.Errorf("writing snapshot %s: %w", name, err)
	}
	s.logger.Debug("Snapshot saved", zap.String("path", path))
	return &schemas.ArtifactRef{Path: path}, nil
}

// ReadXML loads a persisted page-source artifact, transparently reversing
// brotli compression for .br files.
func ReadXML(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening artifact: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".br") {
		r = brotli.NewReader(f)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading artifact %s: %w", path, err)
	}
	return string(b), nil
}
