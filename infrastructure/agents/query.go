package agents

import (
	"context"
	"maps"
	"strings"

	"github.com/sotruth/dualtrack/internal/ports"
)

// responseCollector accumulates the text fragments of one streamed
// response. A message-start fragment discards anything collected for an
// earlier attempt, so retries below the client never leak partial text.
type responseCollector struct {
	ctx       context.Context
	buf       strings.Builder
	fragments int
}

func (c *responseCollector) handle(f ports.Fragment) bool {
	if c.ctx.Err() != nil {
		return false
	}
	c.fragments++
	switch f.Kind {
	case ports.FragmentMessageStart:
		c.buf.Reset()
	case ports.FragmentText:
		c.buf.WriteString(f.Text)
	}
	return true
}

// query sends prompt with the agent's options and returns the full
// response text, assembled from text fragments only. Clients that do not
// stream fragments fall back to their returned string.
func query(ctx context.Context, client ports.LLMClient, prompt string, opts map[string]any) (string, error) {
	c := &responseCollector{ctx: ctx}

	callOpts := maps.Clone(opts)
	if callOpts == nil {
		callOpts = make(map[string]any, 1)
	}
	callOpts[ports.OptionFragmentHandler] = ports.FragmentHandler(c.handle)

	response, err := client.Complete(ctx, prompt, callOpts)
	if err != nil {
		return "", err
	}
	if c.fragments == 0 {
		return response, nil
	}
	return c.buf.String(), nil
}
