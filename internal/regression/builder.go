package regression

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wingman-cli/api/schemas"
	"github.com/xkilldash9x/wingman-cli/internal/artifacts"
)

// datasetWarning rides in every dataset_meta.json. Built datasets carry raw
// strings scraped from real profiles.
const datasetWarning = "this dataset may contain private user data; keep it out of version control"

// BuildOptions configures one dataset build from a recorded packet log.
// Screenshot handling: by default cases reference the original artifact
// paths; Copy relocates the files under the dataset for portability; Embed
// inlines the PNG bytes. Copy and Embed are mutually exclusive.
type BuildOptions struct {
	PacketLogPath    string
	OutDir           string
	Query            string
	ProfileRef       string
	MaxCases         int
	ScreenTypes      []schemas.ScreenType
	CopyScreenshots  bool
	EmbedScreenshots bool
}

// BuildResult reports what one dataset build produced.
type BuildResult struct {
	Dir       string
	CasesPath string
	MetaPath  string
	Cases     int
	Skipped   int
}

var caseIDSanitizer = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

func safeCaseID(raw string) string {
	return caseIDSanitizer.ReplaceAllString(raw, "_")
}

// BuildDataset converts a run's packet log into a replayable cases.jsonl
// plus dataset_meta.json under opts.OutDir. Recorded outcomes (decision,
// trace, validation) are stripped from each case's packet: the packet is
// replay input, and what the live agent actually did goes under source.
func BuildDataset(opts BuildOptions, logger *zap.Logger) (*BuildResult, error) {
	log := logger.Named("regression")

	if opts.PacketLogPath == "" {
		return nil, &schemas.ConfigError{Field: "regression.packet_log", Reason: "packet log path is required"}
	}
	if opts.OutDir == "" {
		return nil, &schemas.ConfigError{Field: "regression.out_dir", Reason: "output directory is required"}
	}
	if opts.CopyScreenshots && opts.EmbedScreenshots {
		return nil, &schemas.ConfigError{Field: "regression.screenshots", Reason: "copy and embed modes are mutually exclusive"}
	}

	packets, skipped, err := artifacts.ReadPacketLog(opts.PacketLogPath)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		log.Warn("Skipped malformed packet log lines",
			zap.String("packet_log", opts.PacketLogPath), zap.Int("skipped", skipped))
	}

	allow := make(map[schemas.ScreenType]bool, len(opts.ScreenTypes))
	for _, st := range opts.ScreenTypes {
		allow[st] = true
	}

	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating dataset directory: %w", err)
	}
	casesPath := filepath.Join(opts.OutDir, "cases.jsonl")
	f, err := os.Create(casesPath)
	if err != nil {
		return nil, fmt.Errorf("creating cases file: %w", err)
	}
	w := bufio.NewWriter(f)

	written := 0
	for i := range packets {
		p := &packets[i]
		if len(allow) > 0 && !allow[p.ScreenType] {
			continue
		}
		if opts.MaxCases > 0 && written >= opts.MaxCases {
			break
		}

		caseID := safeCaseID(fmt.Sprintf("cycle_%04d_%s", i+1, p.ScreenType))
		c := schemas.RegressionCase{
			ContractVersion: schemas.RegressionCaseContract,
			CaseID:          caseID,
			CreatedAt:       time.Now().UTC(),
			ProfileRef:      opts.ProfileRef,
			Query:           opts.Query,
			Packet:          *p,
			Screenshot:      buildCaseScreenshot(p, caseID, opts, log),
			Source:          caseSource(p),
		}
		c.Packet.Decision = nil
		c.Packet.LLMTrace = nil
		c.Packet.Validation = nil

		line, err := json.ConfigCompatibleWithStandardLibrary.Marshal(&c)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("marshaling case %s: %w", caseID, err)
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("writing case %s: %w", caseID, err)
		}
		written++
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("flushing cases file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("closing cases file: %w", err)
	}

	meta := schemas.DatasetMeta{
		ContractVersion: schemas.DatasetMetaContract,
		CreatedAt:       time.Now().UTC(),
		CasesPath:       casesPath,
		Cases:           written,
		SourcePacketLog: opts.PacketLogPath,
		SkippedLines:    skipped,
		ProfileRef:      opts.ProfileRef,
		Query:           opts.Query,
		Warning:         datasetWarning,
	}
	metaPath := filepath.Join(opts.OutDir, "dataset_meta.json")
	encoded, err := json.ConfigCompatibleWithStandardLibrary.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling dataset meta: %w", err)
	}
	if err := os.WriteFile(metaPath, append(encoded, '\n'), 0o644); err != nil {
		return nil, fmt.Errorf("writing dataset meta: %w", err)
	}

	log.Info("Regression dataset built",
		zap.String("dir", opts.OutDir),
		zap.Int("cases", written),
		zap.Int("source_packets", len(packets)),
	)
	return &BuildResult{
		Dir:       opts.OutDir,
		CasesPath: casesPath,
		MetaPath:  metaPath,
		Cases:     written,
		Skipped:   skipped,
	}, nil
}

// caseSource records what the live agent actually did for this packet, when
// it recorded a decision at all.
func caseSource(p *schemas.Packet) schemas.CaseSource {
	if p.Decision == nil {
		return schemas.CaseSource{}
	}
	return schemas.CaseSource{
		ActionTaken: p.Decision.ActionID,
		ReasonTaken: p.Decision.Reason,
	}
}

// buildCaseScreenshot resolves the packet's screenshot artifact into the
// case per the configured mode. When the artifact cannot be read back, the
// case falls back to referencing the recorded path rather than failing the
// build.
func buildCaseScreenshot(p *schemas.Packet, caseID string, opts BuildOptions, log *zap.Logger) *schemas.CaseScreenshot {
	ref := p.ScreenshotRef
	if ref == nil || ref.Path == "" {
		return nil
	}
	pathRef := &schemas.CaseScreenshot{Kind: schemas.ScreenshotPath, Path: ref.Path}
	if !opts.CopyScreenshots && !opts.EmbedScreenshots {
		return pathRef
	}

	png, err := os.ReadFile(ref.Path)
	if err != nil {
		log.Warn("Screenshot artifact unreadable, referencing recorded path",
			zap.String("case_id", caseID), zap.Error(err))
		return pathRef
	}
	sum := sha256.Sum256(png)
	digest := hex.EncodeToString(sum[:])

	if opts.EmbedScreenshots {
		return &schemas.CaseScreenshot{Kind: schemas.ScreenshotBase64, Data: png, SHA256: digest}
	}

	dir := filepath.Join(opts.OutDir, "screenshots")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Warn("Screenshot copy failed, referencing recorded path",
			zap.String("case_id", caseID), zap.Error(err))
		return pathRef
	}
	name := caseID + ".png"
	if err := os.WriteFile(filepath.Join(dir, name), png, 0o644); err != nil {
		log.Warn("Screenshot copy failed, referencing recorded path",
			zap.String("case_id", caseID), zap.Error(err))
		return pathRef
	}
	return &schemas.CaseScreenshot{
		Kind:   schemas.ScreenshotPath,
		Path:   filepath.Join("screenshots", name),
		SHA256: digest,
	}
}
