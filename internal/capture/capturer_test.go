package capture

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/wingman-cli/api/schemas"
	"github.com/xkilldash9x/wingman-cli/internal/config"
	"github.com/xkilldash9x/wingman-cli/internal/mocks"
)

func TestGetObservationAssemblesState(t *testing.T) {
	driver := new(mocks.MockDriver)
	driver.On("PageSource", mock.Anything).Return([]byte(discoverSourceXML), nil)
	driver.On("CurrentPackage", mock.Anything).Return("co.hinge.app", nil)

	c := NewCapturer(driver, config.CaptureConfig{MaxStrings: 100}, zaptest.NewLogger(t))
	obs, err := c.GetObservation(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, schemas.ScreenUnknown, obs.ScreenType)
	assert.Equal(t, "co.hinge.app", obs.PackageName)
	assert.Len(t, obs.Nodes, 6)
	assert.Contains(t, obs.RawStrings, "Priya")
	assert.Equal(t, discoverSourceXML, obs.RawXML)
	assert.Nil(t, obs.Screenshot)
	assert.False(t, obs.CapturedAt.IsZero())
	driver.AssertNotCalled(t, "Screenshot", mock.Anything)
}

func TestGetObservationWithScreenshot(t *testing.T) {
	driver := new(mocks.MockDriver)
	driver.On("PageSource", mock.Anything).Return([]byte(discoverSourceXML), nil)
	driver.On("CurrentPackage", mock.Anything).Return("co.hinge.app", nil)
	driver.On("Screenshot", mock.Anything).Return([]byte{0x89, 0x50, 0x4e, 0x47}, nil)

	c := NewCapturer(driver, config.CaptureConfig{MaxStrings: 100}, zaptest.NewLogger(t))
	obs, err := c.GetObservation(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 0x50, 0x4e, 0x47}, obs.Screenshot)
}

func TestGetObservationScreenshotFailureIsNonFatal(t *testing.T) {
	driver := new(mocks.MockDriver)
	driver.On("PageSource", mock.Anything).Return([]byte(discoverSourceXML), nil)
	driver.On("CurrentPackage", mock.Anything).Return("co.hinge.app", nil)
	driver.On("Screenshot", mock.Anything).Return(nil, errors.New("emulator hiccup"))

	c := NewCapturer(driver, config.CaptureConfig{MaxStrings: 100}, zaptest.NewLogger(t))
	obs, err := c.GetObservation(context.Background(), true)
	require.NoError(t, err)
	assert.Nil(t, obs.Screenshot)
}

func TestGetObservationFallsBackToHierarchyPackage(t *testing.T) {
	driver := new(mocks.MockDriver)
	driver.On("PageSource", mock.Anything).Return([]byte(discoverSourceXML), nil)
	driver.On("CurrentPackage", mock.Anything).Return("", errors.New("adb timeout"))

	c := NewCapturer(driver, config.CaptureConfig{MaxStrings: 100}, zaptest.NewLogger(t))
	obs, err := c.GetObservation(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "co.hinge.app", obs.PackageName)
}

func TestGetObservationPropagatesSourceFailure(t *testing.T) {
	driver := new(mocks.MockDriver)
	wireErr := &schemas.TransportError{Op: "GET /source", Err: errors.New("connection refused")}
	driver.On("PageSource", mock.Anything).Return(nil, wireErr)

	c := NewCapturer(driver, config.CaptureConfig{MaxStrings: 100}, zaptest.NewLogger(t))
	_, err := c.GetObservation(context.Background(), false)
	require.Error(t, err)
	assert.True(t, schemas.IsTransport(err))
}

func TestGetObservationCapsStrings(t *testing.T) {
	driver := new(mocks.MockDriver)
	driver.On("PageSource", mock.Anything).Return([]byte(discoverSourceXML), nil)
	driver.On("CurrentPackage", mock.Anything).Return("co.hinge.app", nil)

	c := NewCapturer(driver, config.CaptureConfig{MaxStrings: 2}, zaptest.NewLogger(t))
	obs, err := c.GetObservation(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, obs.RawStrings, 2)
}
