package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/wingman-cli/api/schemas"
	"github.com/xkilldash9x/wingman-cli/internal/artifacts"
	"github.com/xkilldash9x/wingman-cli/internal/config"
	"github.com/xkilldash9x/wingman-cli/internal/regression"
)

func replayCase(id string, screen schemas.ScreenType, score int, actions []schemas.ActionID, expect ...schemas.ActionID) schemas.RegressionCase {
	return schemas.RegressionCase{
		ContractVersion: schemas.RegressionCaseContract,
		CaseID:          id,
		CreatedAt:       time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC),
		Packet: schemas.Packet{
			Timestamp:           time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC),
			PackageName:         "co.hinge.app",
			ScreenType:          screen,
			QualityScore:        score,
			QualityScoreVersion: schemas.QualityScoreVersion,
			AvailableActions:    actions,
			Limits:              schemas.Limits{LikesRemaining: 20, PassesRemaining: 120, MessagesRemaining: 5},
		},
		ExpectActionsAny: expect,
	}
}

// writeReplayDataset writes a two-case dataset whose deterministic replay
// is fully predictable: the high-scoring discover card likes, and the tab
// shell routes back to Discover.
func writeReplayDataset(t *testing.T, dir string, cases ...schemas.RegressionCase) string {
	t.Helper()

	if len(cases) == 0 {
		cases = []schemas.RegressionCase{
			replayCase("disc-high-quality", schemas.ScreenDiscoverCard, 82,
				[]schemas.ActionID{schemas.ActionLike, schemas.ActionPass, schemas.ActionWait},
				schemas.ActionLike),
			replayCase("tab-shell-route", schemas.ScreenTabShell, 0,
				[]schemas.ActionID{schemas.ActionGotoDiscover, schemas.ActionWait},
				schemas.ActionGotoDiscover),
		}
	}

	var sb strings.Builder
	for i := range cases {
		line, err := json.ConfigCompatibleWithStandardLibrary.Marshal(&cases[i])
		require.NoError(t, err)
		sb.Write(line)
		sb.WriteByte('\n')
	}

	path := filepath.Join(dir, "cases.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))
	return path
}

func TestRegressWriteBaselineThenCleanPass(t *testing.T) {
	resetForTest(t)
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir)
	datasetPath := writeReplayDataset(t, dir)
	baselinePath := filepath.Join(dir, "baseline.json")

	out, err := executeCommand(t, "--config", cfgPath, "regress",
		"--dataset", datasetPath, "--baseline", baselinePath, "--write-baseline")
	require.NoError(t, err)
	assert.Contains(t, out, "Baseline written: "+baselinePath)
	assert.Contains(t, out, "2 passed")

	b, err := regression.LoadBaseline(baselinePath)
	require.NoError(t, err)
	assert.Equal(t, config.ModeDeterministic, b.ModelID)
	assert.Len(t, b.Entries, 2)

	out, err = executeCommand(t, "--config", cfgPath, "regress",
		"--dataset", datasetPath, "--baseline", baselinePath)
	require.NoError(t, err)
	assert.Contains(t, out, "No drift against baseline.")
	assert.Equal(t, 0, ExitCode(err))
}

func TestRegressReportsDriftAgainstTamperedBaseline(t *testing.T) {
	resetForTest(t)
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir)
	datasetPath := writeReplayDataset(t, dir)
	baselinePath := filepath.Join(dir, "baseline.json")

	_, err := executeCommand(t, "--config", cfgPath, "regress",
		"--dataset", datasetPath, "--baseline", baselinePath, "--write-baseline")
	require.NoError(t, err)

	b, err := regression.LoadBaseline(baselinePath)
	require.NoError(t, err)
	for i := range b.Entries {
		if b.Entries[i].CaseID == "disc-high-quality" {
			b.Entries[i].ActionID = schemas.ActionPass
		}
	}
	require.NoError(t, regression.WriteBaseline(baselinePath, b))

	out, err := executeCommand(t, "--config", cfgPath, "regress",
		"--dataset", datasetPath, "--baseline", baselinePath)
	require.Error(t, err)
	assert.Equal(t, 1, ExitCode(err))
	assert.Contains(t, out, "DRIFT disc-high-quality: action pass -> like")
}

func TestRegressMissingDatasetIsHardError(t *testing.T) {
	resetForTest(t)
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir)

	_, err := executeCommand(t, "--config", cfgPath, "regress",
		"--dataset", filepath.Join(dir, "nope", "cases.jsonl"))
	require.Error(t, err)
	assert.Equal(t, 2, ExitCode(err))
}

func TestRegressWithoutBaselineWarnsAndPasses(t *testing.T) {
	resetForTest(t)
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir)
	datasetPath := writeReplayDataset(t, dir)
	baselinePath := filepath.Join(dir, "baseline.json")

	out, err := executeCommand(t, "--config", cfgPath, "regress",
		"--dataset", datasetPath, "--baseline", baselinePath)
	require.NoError(t, err)
	assert.Contains(t, out, "no baseline at "+baselinePath)
	assert.Contains(t, out, "2 passed")
	assert.NotContains(t, out, "No drift", "nothing to compare without a baseline")
}

func TestRegressExpectationFailureExitsOne(t *testing.T) {
	resetForTest(t)
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir)
	// The default swipe policy likes this card, so expecting a message is
	// a guaranteed expectation failure.
	datasetPath := writeReplayDataset(t, dir,
		replayCase("disc-wants-message", schemas.ScreenDiscoverCard, 82,
			[]schemas.ActionID{schemas.ActionLike, schemas.ActionPass, schemas.ActionWait},
			schemas.ActionSendMessage))

	out, err := executeCommand(t, "--config", cfgPath, "regress",
		"--dataset", datasetPath, "--write-baseline")
	require.Error(t, err)
	assert.Equal(t, 1, ExitCode(err))
	assert.Contains(t, out, "FAIL  disc-wants-message")
	assert.Contains(t, out, "unexpected_action")
}

func TestRegressBuildDatasetFromPacketLog(t *testing.T) {
	resetForTest(t)
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir)

	logPath := filepath.Join(dir, "run_packets.jsonl")
	log, err := artifacts.OpenPacketLog(logPath)
	require.NoError(t, err)
	packets := []schemas.Packet{
		{
			Timestamp:           time.Now().UTC(),
			ScreenType:          schemas.ScreenDiscoverCard,
			QualityScore:        82,
			QualityScoreVersion: schemas.QualityScoreVersion,
			AvailableActions:    []schemas.ActionID{schemas.ActionLike, schemas.ActionPass},
			Limits:              schemas.Limits{LikesRemaining: 20, PassesRemaining: 120, MessagesRemaining: 5},
			Decision:            &schemas.ActionPlan{ActionID: schemas.ActionLike, Reason: "score>=70", Source: schemas.SourceDeterministic},
		},
		{
			Timestamp:           time.Now().UTC(),
			ScreenType:          schemas.ScreenTabShell,
			QualityScoreVersion: schemas.QualityScoreVersion,
			AvailableActions:    []schemas.ActionID{schemas.ActionGotoDiscover, schemas.ActionWait},
			Limits:              schemas.Limits{LikesRemaining: 20, PassesRemaining: 120, MessagesRemaining: 5},
		},
	}
	for i := range packets {
		require.NoError(t, log.Append(&packets[i]))
	}
	require.NoError(t, log.Close())

	outDir := filepath.Join(dir, "dataset")
	out, err := executeCommand(t, "--config", cfgPath, "regress", "build",
		"--packet-log", logPath, "--out", outDir, "--profile-ref", "default")
	require.NoError(t, err)
	assert.Contains(t, out, "Dataset built: "+outDir)
	assert.Contains(t, out, "2 cases")

	ds, err := regression.LoadDataset(filepath.Join(outDir, "cases.jsonl"))
	require.NoError(t, err)
	require.Len(t, ds.Cases, 2)
	assert.Equal(t, "cycle_0001_discover_card", ds.Cases[0].CaseID)
	assert.Equal(t, "default", ds.Cases[0].ProfileRef)
	assert.Equal(t, schemas.ActionLike, ds.Cases[0].Source.ActionTaken)
	assert.Nil(t, ds.Cases[0].Packet.Decision, "recorded outcomes are stripped from replay input")

	if _, err := os.Stat(filepath.Join(outDir, "dataset_meta.json")); err != nil {
		t.Fatalf("dataset meta not written: %v", err)
	}
}
