package artifacts

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wingman-cli/api/schemas"
	"github.com/xkilldash9x/wingman-cli/internal/capture"
	"github.com/xkilldash9x/wingman-cli/internal/extract"
	"github.com/xkilldash9x/wingman-cli/internal/screen"
)

// ExtractConfig drives one offline extraction pass over captured artifacts.
type ExtractConfig struct {
	ArtifactsDir      string
	XMLGlob           string
	OutputDir         string
	OutputPrefix      string
	MaxFiles          int
	MaxNodesPerScreen int
	IncludeNodeRows   bool
	PackageAllowlist  []string
}

func (c *ExtractConfig) withDefaults() {
	if c.XMLGlob == "" {
		c.XMLGlob = "*.xml"
	}
	if c.OutputDir == "" {
		c.OutputDir = filepath.Join(c.ArtifactsDir, "offline_exports")
	}
	if c.OutputPrefix == "" {
		c.OutputPrefix = "wingman_offline"
	}
	if c.MaxFiles == 0 {
		c.MaxFiles = 200
	}
	if c.MaxNodesPerScreen == 0 {
		c.MaxNodesPerScreen = 3000
	}
}

func (c *ExtractConfig) validate() error {
	if c.ArtifactsDir == "" {
		return &schemas.ConfigError{Field: "extract.artifacts_dir", Reason: "artifacts directory is required"}
	}
	info, err := os.Stat(c.ArtifactsDir)
	if err != nil || !info.IsDir() {
		return &schemas.ConfigError{
			Field:  "extract.artifacts_dir",
			Reason: fmt.Sprintf("does not exist or is not a directory: %s", c.ArtifactsDir),
		}
	}
	if c.MaxFiles < 0 {
		return &schemas.ConfigError{Field: "extract.max_files", Reason: "must be positive"}
	}
	if c.MaxNodesPerScreen < 0 {
		return &schemas.ConfigError{Field: "extract.max_nodes_per_screen", Reason: "must be positive"}
	}
	for _, pkg := range c.PackageAllowlist {
		if strings.TrimSpace(pkg) == "" {
			return &schemas.ConfigError{Field: "extract.package_allowlist", Reason: "entries must be non-empty"}
		}
	}
	return nil
}

// ExtractResult reports what one extraction pass produced.
type ExtractResult struct {
	ScreensPath      string
	NodesPath        string
	SummaryPath      string
	Processed        int
	Failed           int
	SkippedByPackage int
}

// screenRow is one line of the screens JSONL export.
type screenRow struct {
	SourceID            string                  `json:"source_id"`
	SourcePath          string                  `json:"source_path"`
	ScreenshotPath      string                  `json:"screenshot_path,omitempty"`
	CaptureTimestamp    string                  `json:"capture_timestamp,omitempty"`
	PackageName         string                  `json:"package_name,omitempty"`
	ScreenType          schemas.ScreenType      `json:"screen_type"`
	StringCount         int                     `json:"accessible_strings_count"`
	Strings             []string                `json:"accessible_strings"`
	QualityFeatures     schemas.QualityFeatures `json:"quality_features"`
	QualityScore        int                     `json:"quality_score"`
	QualityScoreVersion string                  `json:"quality_score_version"`
	QualityReasons      []string                `json:"quality_reasons,omitempty"`
	NodeCount           int                     `json:"node_count"`
}

// nodeRow is one line of the nodes JSONL export.
type nodeRow struct {
	SourceID    string             `json:"source_id"`
	SourcePath  string             `json:"source_path"`
	PackageName string             `json:"package_name,omitempty"`
	ScreenType  schemas.ScreenType `json:"screen_type"`
	schemas.UINode
}

type extractError struct {
	SourcePath string `json:"source_path"`
	Error      string `json:"error"`
}

type extractSummary struct {
	ArtifactsDir     string                     `json:"artifacts_dir"`
	XMLGlob          string                     `json:"xml_glob"`
	Processed        int                        `json:"processed_xml_files"`
	Failed           int                        `json:"failed_xml_files"`
	SkippedByPackage int                        `json:"skipped_by_package"`
	ScreenTypeCounts map[schemas.ScreenType]int `json:"screen_type_counts"`
	PackageCounts    map[string]int             `json:"package_counts"`
	ScreensPath      string                     `json:"screens_jsonl_path"`
	NodesPath        string                     `json:"nodes_jsonl_path,omitempty"`
	Errors           []extractError             `json:"errors,omitempty"`
}

// RunExtraction walks captured page-source dumps, classifies and scores each
// one, pairs them with the nearest screenshot, and writes normalized JSONL
// exports plus a summary JSON. Individual file failures are recorded in the
// summary and do not abort the pass.
func RunExtraction(ctx context.Context, cfg ExtractConfig, logger *zap.Logger) (*ExtractResult, error) {
	cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log := logger.Named("artifacts.extract")

	xmlPaths, err := globXMLArtifacts(cfg.ArtifactsDir, cfg.XMLGlob)
	if err != nil {
		return nil, err
	}
	if len(xmlPaths) == 0 {
		return nil, fmt.Errorf("no XML files matched glob %q in %s", cfg.XMLGlob, cfg.ArtifactsDir)
	}
	if len(xmlPaths) > cfg.MaxFiles {
		xmlPaths = xmlPaths[:cfg.MaxFiles]
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	tag := timestampTag(time.Now())
	screensPath := filepath.Join(cfg.OutputDir, fmt.Sprintf("%s_screens_%s.jsonl", cfg.OutputPrefix, tag))
	summaryPath := filepath.Join(cfg.OutputDir, fmt.Sprintf("%s_summary_%s.json", cfg.OutputPrefix, tag))
	nodesPath := ""
	if cfg.IncludeNodeRows {
		nodesPath = filepath.Join(cfg.OutputDir, fmt.Sprintf("%s_nodes_%s.jsonl", cfg.OutputPrefix, tag))
	}

	screensFile, err := os.Create(screensPath)
	if err != nil {
		return nil, fmt.Errorf("creating screens export: %w", err)
	}
	defer screensFile.Close()
	screensW := bufio.NewWriter(screensFile)

	var nodesW *bufio.Writer
	if nodesPath != "" {
		nodesFile, err := os.Create(nodesPath)
		if err != nil {
			return nil, fmt.Errorf("creating nodes export: %w", err)
		}
		defer nodesFile.Close()
		nodesW = bufio.NewWriter(nodesFile)
	}

	var allowlist map[string]struct{}
	if len(cfg.PackageAllowlist) > 0 {
		allowlist = make(map[string]struct{}, len(cfg.PackageAllowlist))
		for _, pkg := range cfg.PackageAllowlist {
			allowlist[strings.TrimSpace(pkg)] = struct{}{}
		}
	}

	pairs := pairScreenshots(cfg.ArtifactsDir)
	summary := extractSummary{
		ArtifactsDir:     cfg.ArtifactsDir,
		XMLGlob:          cfg.XMLGlob,
		ScreenTypeCounts: make(map[schemas.ScreenType]int),
		PackageCounts:    make(map[string]int),
		ScreensPath:      screensPath,
		NodesPath:        nodesPath,
	}

	for _, xmlPath := range xmlPaths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, nodes, err := buildScreenRow(xmlPath, pairs[xmlPath], cfg.MaxNodesPerScreen)
		if err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, extractError{SourcePath: xmlPath, Error: err.Error()})
			log.Warn("Artifact extraction failed for file",
				zap.String("path", xmlPath), zap.Error(err))
			continue
		}
		if allowlist != nil {
			if _, ok := allowlist[row.PackageName]; !ok {
				summary.SkippedByPackage++
				continue
			}
		}

		if err := writeJSONLine(screensW, row); err != nil {
			return nil, err
		}
		if nodesW != nil {
			for _, n := range nodes {
				nr := nodeRow{
					SourceID:    row.SourceID,
					SourcePath:  row.SourcePath,
					PackageName: row.PackageName,
					ScreenType:  row.ScreenType,
					UINode:      n,
				}
				if err := writeJSONLine(nodesW, nr); err != nil {
					return nil, err
				}
			}
		}

		summary.Processed++
		summary.ScreenTypeCounts[row.ScreenType]++
		if row.PackageName != "" {
			summary.PackageCounts[row.PackageName]++
		}
	}

	if err := screensW.Flush(); err != nil {
		return nil, fmt.Errorf("flushing screens export: %w", err)
	}
	if nodesW != nil {
		if err := nodesW.Flush(); err != nil {
			return nil, fmt.Errorf("flushing nodes export: %w", err)
		}
	}

	data, err := json.ConfigCompatibleWithStandardLibrary.MarshalIndent(summary, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling extraction summary: %w", err)
	}
	if err := os.WriteFile(summaryPath, append(data, '\n'), 0o644); err != nil {
		return nil, fmt.Errorf("writing extraction summary: %w", err)
	}

	log.Info("Offline extraction complete",
		zap.Int("processed", summary.Processed),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped_by_package", summary.SkippedByPackage),
		zap.String("screens", screensPath))

	return &ExtractResult{
		ScreensPath:      screensPath,
		NodesPath:        nodesPath,
		SummaryPath:      summaryPath,
		Processed:        summary.Processed,
		Failed:           summary.Failed,
		SkippedByPackage: summary.SkippedByPackage,
	}, nil
}

// buildScreenRow parses one page-source dump into its export row plus the
// node list for the optional nodes export.
func buildScreenRow(xmlPath, screenshotPath string, maxNodes int) (*screenRow, []schemas.UINode, error) {
	raw, err := ReadXML(xmlPath)
	if err != nil {
		return nil, nil, err
	}
	hierarchy, err := capture.ParseHierarchy([]byte(raw))
	if err != nil {
		return nil, nil, err
	}

	nodes := hierarchy.Nodes
	if len(nodes) > maxNodes {
		nodes = nodes[:maxNodes]
	}
	strs := capture.CollectStrings(nodes, maxNodes)
	screenType := screen.Classify(strs)
	features := extract.ExtractFeatures(strs)
	score, reasons := extract.ScoreQuality(screenType, features)

	base, ts := parseTimestampSuffix(artifactStem(xmlPath))
	row := &screenRow{
		SourceID:            base,
		SourcePath:          xmlPath,
		ScreenshotPath:      screenshotPath,
		PackageName:         hierarchy.PackageName,
		ScreenType:          screenType,
		StringCount:         len(strs),
		Strings:             strs,
		QualityFeatures:     features,
		QualityScore:        score,
		QualityScoreVersion: schemas.QualityScoreVersion,
		QualityReasons:      reasons,
		NodeCount:           len(nodes),
	}
	if ts != nil {
		row.CaptureTimestamp = ts.Format(time.RFC3339Nano)
	}
	return row, nodes, nil
}

func writeJSONLine(w *bufio.Writer, v any) error {
	line, err := json.ConfigCompatibleWithStandardLibrary.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling export row: %w", err)
	}
	if _, err := w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("writing export row: %w", err)
	}
	return nil
}

// globXMLArtifacts matches page-source dumps under dir. Compressed .xml.br
// dumps are always included alongside the configured glob.
func globXMLArtifacts(dir, glob string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, glob))
	if err != nil {
		return nil, fmt.Errorf("invalid xml glob %q: %w", glob, err)
	}
	compressed, err := filepath.Glob(filepath.Join(dir, "*.xml.br"))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var out []string
	for _, p := range append(matches, compressed...) {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		if info, err := os.Stat(p); err != nil || !info.Mode().IsRegular() {
			continue
		}
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

var tsSuffixRE = regexp.MustCompile(`^(.+)_(\d{8}-\d{6}-\d{6})$`)

// artifactStem returns the filename without its extension, treating the
// two-part .xml.br extension as one.
func artifactStem(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, ".br")
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// parseTimestampSuffix splits "<base>_<ts>" stems produced by the Store's
// naming scheme. A stem with no parseable timestamp comes back whole.
func parseTimestampSuffix(stem string) (string, *time.Time) {
	m := tsSuffixRE.FindStringSubmatch(stem)
	if m == nil {
		return stem, nil
	}
	ts, ok := parseArtifactTimestamp(m[2])
	if !ok {
		return m[1], nil
	}
	return m[1], &ts
}

// normalizePairingBase strips capture-role suffixes so a page-source dump and
// its sibling screenshot share a pairing key.
func normalizePairingBase(base string) string {
	out := base
	for _, suffix := range []string{"_source", "_screenshot", "_page_source", "_page", "_screen"} {
		out = strings.TrimSuffix(out, suffix)
	}
	return out
}

type pairCandidate struct {
	ts   *time.Time
	path string
}

// pairScreenshots maps each page-source dump in dir to its best screenshot:
// same normalized stem, nearest capture timestamp. Dumps with no timestamp,
// or no timestamped candidates, fall back to the last candidate in name
// order.
func pairScreenshots(dir string) map[string]string {
	xmlPaths, _ := globXMLArtifacts(dir, "*.xml")
	pngPaths, _ := filepath.Glob(filepath.Join(dir, "*.png"))
	sort.Strings(pngPaths)

	index := make(map[string][]pairCandidate)
	for _, png := range pngPaths {
		base, ts := parseTimestampSuffix(artifactStem(png))
		key := normalizePairingBase(base)
		index[key] = append(index[key], pairCandidate{ts: ts, path: png})
	}

	pairs := make(map[string]string, len(xmlPaths))
	for _, xml := range xmlPaths {
		base, xmlTS := parseTimestampSuffix(artifactStem(xml))
		candidates := index[normalizePairingBase(base)]
		if len(candidates) == 0 {
			continue
		}
		if xmlTS == nil {
			pairs[xml] = candidates[len(candidates)-1].path
			continue
		}

		var (
			nearest      string
			nearestDelta time.Duration
		)
		for _, c := range candidates {
			if c.ts == nil {
				continue
			}
			delta := c.ts.Sub(*xmlTS)
			if delta < 0 {
				delta = -delta
			}
			if nearest == "" || delta < nearestDelta {
				nearest = c.path
				nearestDelta = delta
			}
		}
		if nearest == "" {
			nearest = candidates[len(candidates)-1].path
		}
		pairs[xml] = nearest
	}
	return pairs
}
