package providers

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Engine generates images from slide content. Implementations are stateless
// HTTP clients; a failed call is terminal for the requesting task (retry
// policy belongs to the caller, not the engine).
type Engine interface {
	// Name returns the engine identifier used in project settings
	Name() string

	// GenerateSlideImage renders one image for the given slide content.
	// stylePrompt and styleImage anchor the project's visual direction and
	// may be empty when no style is set.
	GenerateSlideImage(ctx context.Context, content, stylePrompt string, styleImage []byte) ([]byte, error)

	// GenerateStyleImage renders one style candidate from a prompt
	GenerateStyleImage(ctx context.Context, prompt string) ([]byte, error)
}

// Registry holds the configured engines by name
type Registry struct {
	engines map[string]Engine
}

// NewRegistry creates an engine registry
func NewRegistry(engines ...Engine) *Registry {
	r := &Registry{engines: make(map[string]Engine)}
	for _, e := range engines {
		r.engines[e.Name()] = e
	}
	return r
}

// Get returns the engine with the given name
func (r *Registry) Get(name string) (Engine, error) {
	engine, ok := r.engines[name]
	if !ok {
		return nil, fmt.Errorf("unknown engine: %s", name)
	}
	return engine, nil
}

// Names returns the configured engine names
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	return names
}

// newHTTPClient builds the shared client used by all engines. Generation
// calls are long; the per-task context enforces the real deadline.
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 5 * time.Minute,
	}
}

// slidePrompt builds the image prompt for a slide, blending its content with
// the project style prompt when one is set.
func slidePrompt(content, stylePrompt string) string {
	if stylePrompt == "" {
		return fmt.Sprintf("Create a presentation slide illustration for the following content. Wide 16:9 composition, no embedded text.\n\n%s", content)
	}
	return fmt.Sprintf("Create a presentation slide illustration for the following content. Wide 16:9 composition, no embedded text.\n\nVisual style: %s\n\nContent:\n%s", stylePrompt, content)
}
