// Package classify asks a Gemini vision model whether a captured frame
// actually shows a rodent. Object detection narrows frames down to
// "something is sitting in the zone"; this is the second opinion that
// decides what that something is.
package classify

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"google.golang.org/genai"
)

// Prompt is the fixed verdict prompt. The model is asked for one of two
// exact phrases so the answer can be matched mechanically.
const Prompt = "Look at this image and determine if there is a mouse or rat visible. " +
	"Respond with ONLY one of these options: 'MOUSE/RAT DETECTED' or 'NO MOUSE/RAT'. " +
	"Be very specific - only respond if you can clearly see a mouse or rat in the image."

// defaultModels are tried in order until one answers. Free-tier keys do not
// have access to every listed model.
var defaultModels = []string{
	"gemini-2.0-flash",
	"gemini-1.5-flash",
	"gemini-1.5-pro",
}

// LoadAPIKey reads GEMINI_API_KEY from a .env file in the working directory,
// falling back to the process environment.
func LoadAPIKey() (string, error) {
	// Missing .env is fine, the environment variable may still be set
	_ = godotenv.Load()

	key := os.Getenv("GEMINI_API_KEY")
	if key == "" || key == "your-api-key-here" {
		return "", fmt.Errorf("GEMINI_API_KEY is not set: create a .env file with GEMINI_API_KEY=your-actual-key-here")
	}
	return key, nil
}

// Client is a verdict client bound to one working Gemini model.
type Client struct {
	genai *genai.Client
	model string
}

// NewClient connects to the Gemini API and picks the first model from the
// candidate list that answers a probe request. An empty candidate list uses
// the default fallback order.
func NewClient(ctx context.Context, apiKey string, models []string) (*Client, error) {
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create Gemini client: %v", err)
	}

	if len(models) == 0 {
		models = defaultModels
	}

	var lastErr error
	for _, model := range models {
		if err := probeModel(ctx, gc, model); err != nil {
			debugMsg("GEMINI", fmt.Sprintf("model %s not usable: %v", model, err))
			lastErr = err
			continue
		}
		debugMsg("GEMINI", fmt.Sprintf("model %s verified", model))
		return &Client{genai: gc, model: model}, nil
	}

	return nil, fmt.Errorf("no working Gemini model found (tried %d): %v", len(models), lastErr)
}

// probeModel sends a trivial request to verify the model is available for
// this API key. Listed models are not always callable on every tier.
func probeModel(ctx context.Context, gc *genai.Client, model string) error {
	contents := []*genai.Content{
		genai.NewContentFromText("Say 'test'", genai.RoleUser),
	}
	_, err := gc.Models.GenerateContent(ctx, model, contents, nil)
	return err
}

// Model returns the name of the verified model in use.
func (c *Client) Model() string {
	return c.model
}

// Classify sends a JPEG image to Gemini and returns the raw verdict text.
func (c *Client) Classify(ctx context.Context, jpeg []byte) (string, error) {
	parts := []*genai.Part{
		genai.NewPartFromBytes(jpeg, "image/jpeg"),
		genai.NewPartFromText(Prompt),
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	resp, err := c.genai.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %v", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty response from Gemini")
	}
	return text, nil
}

// Global debug function for classify package
var debugMsgFunc func(component, message string)

// SetDebugFunction allows main package to provide debug function
func SetDebugFunction(fn func(component, message string)) {
	debugMsgFunc = fn
}

func debugMsg(component, message string) {
	if debugMsgFunc != nil {
		debugMsgFunc(component, message)
	}
}
