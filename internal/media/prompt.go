package media

import (
	"context"
	"fmt"
	"strings"

	"github.com/pterm/pterm"
)

// Prompt asks the user for permission before delegating to Source. A refusal
// yields ErrPermissionDenied and no tracks.
type Prompt struct {
	Source Source

	// Confirm asks a yes/no question. Nil uses an interactive pterm confirm.
	Confirm func(question string) (bool, error)
}

// Compile-time interface check.
var _ Source = (*Prompt)(nil)

func (p *Prompt) Capture(ctx context.Context, req Request) (Stream, error) {
	confirm := p.Confirm
	if confirm == nil {
		confirm = confirmInteractive
	}

	ok, err := confirm(fmt.Sprintf("Allow sharing your %s?", describe(req)))
	if err != nil {
		return nil, fmt.Errorf("permission prompt: %w", err)
	}
	if !ok {
		return nil, ErrPermissionDenied
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return p.Source.Capture(ctx, req)
}

func confirmInteractive(question string) (bool, error) {
	return pterm.DefaultInteractiveConfirm.
		WithDefaultText(question).
		Show()
}

func describe(req Request) string {
	var parts []string
	if req.Video {
		parts = append(parts, "screen")
	}
	if req.Audio {
		parts = append(parts, "audio")
	}
	if len(parts) == 0 {
		return "nothing"
	}
	return strings.Join(parts, " and ")
}
