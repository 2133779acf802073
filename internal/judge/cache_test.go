package judge

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/wingman-cli/api/schemas"
)

func sampleScore(overall int) schemas.JudgeScore {
	return schemas.JudgeScore{
		OK:                   true,
		OverallScore:         overall,
		ActionAlignmentScore: 90,
		MessageQualityScore:  70,
		SafetyScore:          100,
		Reasons:              []string{"aligned with policy"},
		RubricVersion:        schemas.JudgeRubricVersion,
	}
}

func TestOpenCacheMissingFileIsEmpty(t *testing.T) {
	cache, err := OpenCache(filepath.Join(t.TempDir(), "judge_cache.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, 0, cache.Len())

	_, ok := cache.Get("nope")
	assert.False(t, ok)
}

func TestOpenCacheRejectsDirectory(t *testing.T) {
	_, err := OpenCache(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "directory")
}

func TestCachePutThenGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "judge_cache.jsonl")
	cache, err := OpenCache(path)
	require.NoError(t, err)

	require.NoError(t, cache.Put("k1", sampleScore(88)))

	got, ok := cache.Get("k1")
	require.True(t, ok)
	assert.Equal(t, 88, got.OverallScore)
	assert.Equal(t, []string{"aligned with policy"}, got.Reasons)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(raw))
	assert.Contains(t, line, `"key":"k1"`)
	assert.Contains(t, line, `"ts":`)
	assert.Contains(t, line, `"overall_score":88`)
}

func TestCacheSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "judge_cache.jsonl")

	first, err := OpenCache(path)
	require.NoError(t, err)
	require.NoError(t, first.Put("k1", sampleScore(81)))
	require.NoError(t, first.Put("k2", sampleScore(42)))

	second, err := OpenCache(path)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Len())

	got, ok := second.Get("k2")
	require.True(t, ok)
	assert.Equal(t, 42, got.OverallScore)
}

func TestOpenCacheSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "judge_cache.jsonl")
	content := strings.Join([]string{
		`{"ts":"2026-08-01T10:00:00Z","key":"good","value":{"ok":true,"overall_score":77,"action_alignment_score":80,"message_quality_score":60,"safety_score":95,"rubric_version":"judge.v1"}}`,
		`not json at all`,
		``,
		`{"key":""}`,
		`[1,2,3]`,
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cache, err := OpenCache(path)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Len())

	got, ok := cache.Get("good")
	require.True(t, ok)
	assert.Equal(t, 77, got.OverallScore)
}

func TestOpenCacheLastWriteWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "judge_cache.jsonl")

	cache, err := OpenCache(path)
	require.NoError(t, err)
	require.NoError(t, cache.Put("k1", sampleScore(10)))
	require.NoError(t, cache.Put("k1", sampleScore(99)))

	reopened, err := OpenCache(path)
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Len())

	got, ok := reopened.Get("k1")
	require.True(t, ok)
	assert.Equal(t, 99, got.OverallScore)
}

func TestCachePutCreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "judge_cache.jsonl")
	cache, err := OpenCache(path)
	require.NoError(t, err)

	require.NoError(t, cache.Put("k1", sampleScore(50)))

	_, err = os.Stat(path)
	require.NoError(t, err)
}
