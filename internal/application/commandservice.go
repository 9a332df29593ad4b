package application

import (
	"context"
	"log/slog"

	"github.com/ericfisherdev/stepsync/internal/domain/model"
)

// CommandService executes decoded commands and turns every outcome into a
// Response. It never returns an error.
type CommandService struct {
	steps  *StepService
	tokens *TokenService
}

// NewCommandService creates a new CommandService with the required dependencies.
func NewCommandService(steps *StepService, tokens *TokenService) *CommandService {
	return &CommandService{steps: steps, tokens: tokens}
}

// Execute runs cmd and returns its response.
func (s *CommandService) Execute(ctx context.Context, cmd model.Command) model.Response {
	switch c := cmd.(type) {
	case model.GetSteps:
		steps, err := s.steps.GetSteps(ctx, c.UserID, c.Range)
		if err != nil {
			return s.fail(c, err)
		}
		return model.StepsResponse{Steps: steps}

	case model.RefreshToken:
		if _, err := s.tokens.Refresh(ctx, c.UserID); err != nil {
			return s.fail(c, err)
		}
		return model.RefreshedResponse{}

	default:
		slog.Error("unsupported command type", "command", cmd)
		return model.ErrorResponse{Kind: model.KindInternal, Message: "unsupported command"}
	}
}

func (s *CommandService) fail(cmd model.Command, err error) model.Response {
	resp := model.NewErrorResponse(err)
	if resp.Kind == model.KindInternal || resp.Kind == model.KindTransport {
		slog.Error("command failed", "user", cmd.User(), "kind", resp.Kind.String(), "error", err)
	} else {
		slog.Info("command failed", "user", cmd.User(), "kind", resp.Kind.String(), "error", err)
	}
	return resp
}
