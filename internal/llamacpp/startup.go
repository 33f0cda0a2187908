package llamacpp

import (
	"context"
	"fmt"
)

// Server describes the model and context window selected for a run.
type Server struct {
	Model       string
	ContextSize int
}

// Discover queries the server once at startup for its context window size
// and picks the first model it serves.
func Discover(ctx context.Context, c *Client) (Server, error) {
	props, err := c.Props(ctx)
	if err != nil {
		return Server{}, fmt.Errorf("retrieving server properties: %w", err)
	}
	if props.DefaultGenerationSettings.NCtx <= 0 {
		return Server{}, fmt.Errorf("server reported invalid context size %d", props.DefaultGenerationSettings.NCtx)
	}

	models, err := c.Models(ctx)
	if err != nil {
		return Server{}, fmt.Errorf("retrieving models: %w", err)
	}
	if len(models) == 0 {
		return Server{}, ErrNoModels
	}

	return Server{
		Model:       models[0],
		ContextSize: props.DefaultGenerationSettings.NCtx,
	}, nil
}
