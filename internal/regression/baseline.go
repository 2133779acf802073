package regression

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/wingman-cli/api/schemas"
)

// LoadBaseline reads a committed baseline document and checks its contract.
func LoadBaseline(path string) (*schemas.Baseline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading baseline: %w", err)
	}

	var b schemas.Baseline
	if err := json.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &b); err != nil {
		return nil, &schemas.ConfigError{
			Field:  "regression.baseline",
			Reason: fmt.Sprintf("%s: %v", filepath.Base(path), err),
		}
	}
	if b.ContractVersion != schemas.BaselineContract {
		return nil, &schemas.ConfigError{
			Field:  "regression.baseline",
			Reason: fmt.Sprintf("%s: contract %q, want %q", filepath.Base(path), b.ContractVersion, schemas.BaselineContract),
		}
	}

	seen := make(map[string]struct{}, len(b.Entries))
	for _, e := range b.Entries {
		if e.CaseID == "" {
			return nil, &schemas.ConfigError{
				Field:  "regression.baseline",
				Reason: fmt.Sprintf("%s: entry with empty case id", filepath.Base(path)),
			}
		}
		if _, dup := seen[e.CaseID]; dup {
			return nil, &schemas.ConfigError{
				Field:  "regression.baseline",
				Reason: fmt.Sprintf("%s: duplicate case id %q", filepath.Base(path), e.CaseID),
			}
		}
		seen[e.CaseID] = struct{}{}
	}
	return &b, nil
}

// WriteBaseline replaces the baseline at path with b. The write goes
// through a temp file and rename so a crash never leaves a half-written
// document; an existing baseline is replaced wholesale, never merged into.
func WriteBaseline(path string, b *schemas.Baseline) error {
	data, err := json.ConfigCompatibleWithStandardLibrary.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling baseline: %w", err)
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating baseline directory: %w", err)
		}
	}
	tmp, err := os.CreateTemp(dir, ".baseline-*.json")
	if err != nil {
		return fmt.Errorf("creating baseline temp file: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("writing baseline: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("closing baseline temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replacing baseline %s: %w", path, err)
	}
	return nil
}

// BaselineFromResults snapshots one run's decisions as a replacement
// baseline for the named model configuration. Every case must have produced
// a plan; a run with errored cases cannot be promoted.
func BaselineFromResults(modelID string, temperature float64, results []schemas.CaseResult) (*schemas.Baseline, error) {
	b := &schemas.Baseline{
		ContractVersion: schemas.BaselineContract,
		ModelID:         modelID,
		Temperature:     temperature,
		CreatedAt:       time.Now().UTC(),
		Entries:         make([]schemas.BaselineEntry, 0, len(results)),
	}
	for _, r := range results {
		if r.Plan == nil {
			return nil, fmt.Errorf("case %s produced no decision; refusing to write baseline", r.CaseID)
		}
		b.Entries = append(b.Entries, schemas.BaselineEntry{
			CaseID:      r.CaseID,
			ActionID:    r.Plan.ActionID,
			MessageText: r.Plan.MessageText,
		})
	}
	return b, nil
}
