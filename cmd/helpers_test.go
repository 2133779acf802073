package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/wingman-cli/internal/config"
	"github.com/xkilldash9x/wingman-cli/internal/mocks"
	"github.com/xkilldash9x/wingman-cli/internal/observability"
)

// A discover card from the target app. Scores 55 via screen bonus, selfie
// verification, and activity signal, so a profile threshold of 50 likes it.
const discoverXML = `<?xml version='1.0' encoding='UTF-8' standalone='yes' ?>
<hierarchy rotation="0">
  <android.widget.FrameLayout package="co.hinge.app" bounds="[0,0][1080,2400]" clickable="false" enabled="true">
    <android.widget.TextView text="Priya" bounds="[48,180][400,260]" clickable="false" enabled="true"/>
    <android.widget.TextView text="Selfie Verified" bounds="[420,180][700,260]" clickable="false" enabled="true"/>
    <android.widget.TextView text="Active today" bounds="[720,180][980,260]" clickable="false" enabled="true"/>
    <android.widget.Button content-desc="Like Priya's photo" bounds="[880,1980][1040,2140]" clickable="true" enabled="true"/>
    <android.widget.Button content-desc="Skip Priya" bounds="[40,1980][200,2140]" clickable="true" enabled="true"/>
  </android.widget.FrameLayout>
</hierarchy>`

// resetForTest is the single source of truth for resetting command state
// between tests: the config flag, the injected constructors, and the global
// logger, which is silenced so command output stays assertable.
func resetForTest(t *testing.T) {
	t.Helper()

	cfgFile = ""

	origDriver := newDriver
	origClient := newLLMClient
	t.Cleanup(func() {
		cfgFile = ""
		newDriver = origDriver
		newLLMClient = origClient
		observability.ResetForTest()
	})

	observability.ResetForTest()
	observability.InitializeLogger(config.LoggerConfig{Level: "fatal", Format: "console", ServiceName: "test"})
}

// writeTestConfig writes a config file that keeps every artifact inside the
// test's temp directory and lowers the like threshold so the canned discover
// card clears it.
func writeTestConfig(t *testing.T, dir string) string {
	t.Helper()

	content := fmt.Sprintf(`logger:
  level: fatal
  format: console
  log_file: ""
capture:
  artifacts_dir: %q
profile:
  swipe:
    min_quality_score_like: 50
session:
  dry_run: true
regression:
  cases_dir: %q
  baseline_path: %q
judge:
  cache_path: %q
`,
		filepath.Join(dir, "artifacts"),
		filepath.Join(dir, "regression"),
		filepath.Join(dir, "regression", "baseline.json"),
		filepath.Join(dir, "judge_cache.jsonl"),
	)

	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o644))
	return cfgPath
}

// writeBadConfig writes a config file that parses but fails validation.
func writeBadConfig(t *testing.T, dir string) string {
	t.Helper()

	content := `logger:
  level: fatal
  log_file: ""
profile:
  swipe:
    min_quality_score_like: 500
`
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o644))
	return cfgPath
}

// executeCommand runs a pristine command tree and returns its combined
// output.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// stubDriver returns a mock device stuck on the canned discover card.
func stubDriver() *mocks.MockDriver {
	driver := &mocks.MockDriver{}
	driver.On("PageSource", mock.Anything).Return([]byte(discoverXML), nil)
	driver.On("CurrentPackage", mock.Anything).Return("co.hinge.app", nil)
	driver.On("Close").Return(nil).Maybe()
	return driver
}
