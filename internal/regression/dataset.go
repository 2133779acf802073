// Package regression replays recorded decision cycles through the decision
// engine and reports behavioral drift against a committed baseline. It never
// touches a device: the packet snapshot inside each case is the complete
// input the engine saw live.
package regression

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/wingman-cli/api/schemas"
)

// maxCaseLineBytes bounds one JSONL case line. Cases with embedded
// screenshots carry base64 PNG payloads, so the ceiling is generous.
const maxCaseLineBytes = 32 * 1024 * 1024

// Dataset is an ordered set of replayable cases plus the directory relative
// screenshot paths resolve against.
type Dataset struct {
	Path  string
	Dir   string
	Cases []schemas.RegressionCase
}

// LoadDataset reads a cases JSONL file. A malformed line, a contract
// mismatch, a missing case id, or a duplicate id fails the whole load: the
// dataset is either fully usable or rejected.
func LoadDataset(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset: %w", err)
	}
	defer f.Close()

	ds := &Dataset{Path: path, Dir: filepath.Dir(path)}
	seen := make(map[string]struct{})

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxCaseLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var c schemas.RegressionCase
		if err := json.ConfigCompatibleWithStandardLibrary.Unmarshal(line, &c); err != nil {
			return nil, &schemas.ConfigError{
				Field:  "regression.dataset",
				Reason: fmt.Sprintf("%s line %d: %v", filepath.Base(path), lineNo, err),
			}
		}
		if c.ContractVersion != schemas.RegressionCaseContract {
			return nil, &schemas.ConfigError{
				Field:  "regression.dataset",
				Reason: fmt.Sprintf("%s line %d: contract %q, want %q", filepath.Base(path), lineNo, c.ContractVersion, schemas.RegressionCaseContract),
			}
		}
		if c.CaseID == "" {
			return nil, &schemas.ConfigError{
				Field:  "regression.dataset",
				Reason: fmt.Sprintf("%s line %d: case id is required", filepath.Base(path), lineNo),
			}
		}
		if _, dup := seen[c.CaseID]; dup {
			return nil, &schemas.ConfigError{
				Field:  "regression.dataset",
				Reason: fmt.Sprintf("%s line %d: duplicate case id %q", filepath.Base(path), lineNo, c.CaseID),
			}
		}
		seen[c.CaseID] = struct{}{}
		ds.Cases = append(ds.Cases, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading dataset %s: %w", path, err)
	}
	if len(ds.Cases) == 0 {
		return nil, &schemas.ConfigError{
			Field:  "regression.dataset",
			Reason: fmt.Sprintf("%s contains no cases", filepath.Base(path)),
		}
	}
	return ds, nil
}

// Screenshot materializes a case's screenshot bytes. Relative path
// references resolve against the dataset directory, and a recorded sha256
// is verified when present. A case without a screenshot yields nil, nil.
func (d *Dataset) Screenshot(c *schemas.RegressionCase) ([]byte, error) {
	shot := c.Screenshot
	if shot == nil || shot.Kind == "" || shot.Kind == schemas.ScreenshotNone {
		return nil, nil
	}

	var png []byte
	switch shot.Kind {
	case schemas.ScreenshotBase64:
		if len(shot.Data) == 0 {
			return nil, fmt.Errorf("case %s: inline screenshot is empty", c.CaseID)
		}
		png = shot.Data
	case schemas.ScreenshotPath:
		if shot.Path == "" {
			return nil, fmt.Errorf("case %s: screenshot path is empty", c.CaseID)
		}
		p := shot.Path
		if !filepath.IsAbs(p) {
			p = filepath.Join(d.Dir, p)
		}
		var err error
		png, err = os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("case %s: reading screenshot: %w", c.CaseID, err)
		}
	default:
		return nil, fmt.Errorf("case %s: unknown screenshot kind %q", c.CaseID, shot.Kind)
	}

	if shot.SHA256 != "" {
		sum := sha256.Sum256(png)
		if got := hex.EncodeToString(sum[:]); got != shot.SHA256 {
			return nil, fmt.Errorf("case %s: screenshot sha256 mismatch", c.CaseID)
		}
	}
	return png, nil
}
