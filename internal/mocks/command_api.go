// Package mocks provides hand-written testify mocks shared by the package
// tests.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/yonomi/thincloud-sdk/internal/models"
)

// CommandAPI is a testify mock of the gateway's backend surface.
type CommandAPI struct {
	mock.Mock
}

func (m *CommandAPI) PendingCommands(ctx context.Context, deviceID string) ([]models.DeviceCommand, error) {
	args := m.Called(ctx, deviceID)
	if cmds, ok := args.Get(0).([]models.DeviceCommand); ok {
		return cmds, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *CommandAPI) UpdateCommandState(ctx context.Context, deviceID, commandID string, state models.CommandState, response map[string]any) (models.DeviceCommand, error) {
	args := m.Called(ctx, deviceID, commandID, state, response)
	if cmd, ok := args.Get(0).(models.DeviceCommand); ok {
		return cmd, args.Error(1)
	}
	return models.DeviceCommand{}, args.Error(1)
}

// CommandHandler is a testify mock of the application command handler.
type CommandHandler struct {
	mock.Mock
}

func (m *CommandHandler) HandleCommands(ctx context.Context, cmds []models.DeviceCommand) ([]models.DeviceCommand, error) {
	args := m.Called(ctx, cmds)
	// Allow tests to compute the returned batch from the delivered one.
	if fn, ok := args.Get(0).(func(context.Context, []models.DeviceCommand) []models.DeviceCommand); ok {
		return fn(ctx, cmds), args.Error(1)
	}
	if out, ok := args.Get(0).([]models.DeviceCommand); ok {
		return out, args.Error(1)
	}
	return nil, args.Error(1)
}
