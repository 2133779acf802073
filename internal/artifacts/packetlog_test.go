package artifacts

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/wingman-cli/api/schemas"
)

func samplePacket(action schemas.ActionID) *schemas.Packet {
	reason := "score 82 >= threshold 70"
	return &schemas.Packet{
		Timestamp:           time.Date(2026, 8, 25, 15, 30, 0, 0, time.UTC),
		PackageName:         "co.hinge.app",
		ScreenType:          schemas.ScreenDiscoverCard,
		QualityScore:        82,
		QualityScoreVersion: schemas.QualityScoreVersion,
		AvailableActions:    []schemas.ActionID{schemas.ActionLike, schemas.ActionPass},
		ObservedStrings:     []string{"Priya", "Like Priya's photo"},
		Limits:              schemas.Limits{LikesRemaining: 19, PassesRemaining: 118, MessagesRemaining: 5},
		Decision: &schemas.ActionPlan{
			ActionID: action,
			Reason:   reason,
			Source:   schemas.SourceDeterministic,
		},
	}
}

func TestPacketLogAppendAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run_packets.jsonl")
	log, err := OpenPacketLog(path)
	require.NoError(t, err)

	require.NoError(t, log.Append(samplePacket(schemas.ActionLike)))
	require.NoError(t, log.Append(samplePacket(schemas.ActionPass)))
	assert.Equal(t, 2, log.Count())
	require.NoError(t, log.Close())

	packets, skipped, err := ReadPacketLog(path)
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, packets, 2)
	assert.Equal(t, schemas.ActionLike, packets[0].Decision.ActionID)
	assert.Equal(t, schemas.ActionPass, packets[1].Decision.ActionID)
	assert.Equal(t, schemas.ScreenDiscoverCard, packets[0].ScreenType)
	assert.Equal(t, 19, packets[0].Limits.LikesRemaining)
}

func TestPacketLogLinesAreSelfContained(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run_packets.jsonl")
	log, err := OpenPacketLog(path)
	require.NoError(t, err)
	require.NoError(t, log.Append(samplePacket(schemas.ActionLike)))
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"ts":`)
	assert.Contains(t, lines[0], `"screen_type":"discover_card"`)
	assert.Contains(t, lines[0], `"action":"like"`)
}

func TestPacketLogAppendAfterCloseFails(t *testing.T) {
	log, err := OpenPacketLog(filepath.Join(t.TempDir(), "p.jsonl"))
	require.NoError(t, err)
	require.NoError(t, log.Close())

	err = log.Append(samplePacket(schemas.ActionLike))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

func TestPacketLogCloseIsIdempotent(t *testing.T) {
	log, err := OpenPacketLog(filepath.Join(t.TempDir(), "p.jsonl"))
	require.NoError(t, err)
	assert.NoError(t, log.Close())
	assert.NoError(t, log.Close())
}

func TestPacketLogCreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "p.jsonl")
	log, err := OpenPacketLog(path)
	require.NoError(t, err)
	require.NoError(t, log.Append(samplePacket(schemas.ActionLike)))
	require.NoError(t, log.Close())

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestPacketLogConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.jsonl")
	log, err := OpenPacketLog(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				assert.NoError(t, log.Append(samplePacket(schemas.ActionLike)))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, log.Count())
	require.NoError(t, log.Close())

	packets, skipped, err := ReadPacketLog(path)
	require.NoError(t, err)
	assert.Zero(t, skipped)
	assert.Len(t, packets, 100)
}

func TestReadPacketLogSkipsTruncatedTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.jsonl")
	log, err := OpenPacketLog(path)
	require.NoError(t, err)
	require.NoError(t, log.Append(samplePacket(schemas.ActionLike)))
	require.NoError(t, log.Close())

	// Simulate a crash mid-append: a final line with no closing brace.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"ts":"2026-08-25T15:31:00Z","screen_ty`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	packets, skipped, err := ReadPacketLog(path)
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, packets, 1)
	assert.Equal(t, schemas.ActionLike, packets[0].Decision.ActionID)
}

func TestReadPacketLogMissingFile(t *testing.T) {
	_, _, err := ReadPacketLog(filepath.Join(t.TempDir(), "absent.jsonl"))
	assert.Error(t, err)
}

func TestWriteRunSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.json")
	summary := &schemas.RunSummary{
		RunID:      "run-1234",
		Profile:    "default",
		Query:      "like active profiles",
		StartedAt:  time.Date(2026, 8, 25, 15, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2026, 8, 25, 15, 5, 0, 0, time.UTC),
		Cycles:     12,
		ActionCount: map[schemas.ActionID]int{
			schemas.ActionLike: 3,
			schemas.ActionPass: 8,
		},
		Likes:       3,
		Passes:      8,
		Termination: schemas.TermCompleted,
	}
	require.NoError(t, WriteRunSummary(path, summary))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"run_id": "run-1234"`)
	assert.Contains(t, string(data), `"termination": "completed"`)

	var back schemas.RunSummary
	require.NoError(t, json.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &back))
	assert.Equal(t, summary.Cycles, back.Cycles)
	assert.Equal(t, summary.ActionCount, back.ActionCount)
}
