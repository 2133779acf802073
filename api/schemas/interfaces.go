package schemas

import "context"

// GenerationOptions provides detailed parameters to control the text
// generation process of the LLM, such as creativity (temperature) and
// output format.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`       // Controls randomness. Lower is more deterministic.
	ForceJSONFormat bool    `json:"force_json_format"` // If true, forces the model to output valid JSON.
	MaxOutputTokens int     `json:"max_output_tokens"` // Caps the completion length. Zero means provider default.
}

// ImagePart attaches one inline image to a generation request.
type ImagePart struct {
	MIMEType string `json:"mime_type"` // e.g. "image/png".
	Data     []byte `json:"data"`      // Raw image bytes, not base64.
}

// GenerationRequest encapsulates a complete request to the LLM, including
// the system and user prompts, an optional screenshot, and generation
// options.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"` // Instructions for the model's persona and task.
	UserPrompt   string            `json:"user_prompt"`   // The serialized decision context.
	Image        *ImagePart        `json:"image,omitempty"`
	Options      GenerationOptions `json:"options"`
}

// GenerationResult carries the model's text plus call metadata for the
// packet log.
type GenerationResult struct {
	Text  string   `json:"text"`
	Trace LLMTrace `json:"trace"`
}

// LLMClient defines a standard interface for interacting with a Large
// Language Model, abstracting the specifics of the underlying provider
// (e.g. Gemini).
type LLMClient interface {
	// Generate produces a completion based on the provided request.
	Generate(ctx context.Context, req GenerationRequest) (GenerationResult, error)
	// Close cleans up any resources held by the client.
	Close() error
}

// Driver abstracts the device automation transport. Implementations talk to
// a UIAutomator2 server over HTTP; tests substitute fakes. Every method
// maps to exactly one device round trip.
type Driver interface {
	// PageSource returns the current UI hierarchy as XML.
	PageSource(ctx context.Context) ([]byte, error)
	// Screenshot returns the current screen as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)
	// CurrentPackage returns the package name of the foreground app.
	CurrentPackage(ctx context.Context) (string, error)
	// Tap clicks the given screen coordinate.
	Tap(ctx context.Context, p Point) error
	// SendKeys types text into the currently focused element.
	SendKeys(ctx context.Context, text string) error
	// PressBack issues the Android back key.
	PressBack(ctx context.Context) error
	// ActivateApp brings the given package to the foreground.
	ActivateApp(ctx context.Context, packageName string) error
	// Close releases the underlying device session.
	Close() error
}
