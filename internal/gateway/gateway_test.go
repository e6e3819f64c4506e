package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yonomi/thincloud-sdk/internal/mocks"
	"github.com/yonomi/thincloud-sdk/internal/models"
	"github.com/yonomi/thincloud-sdk/internal/utils"
)

const pushPayload = `{"deviceId":"d1","lastCommand":{"commandId":"c1","issuedBy":"u1","createdAt":1700000000000}}`

func pendingCommand(id string) models.DeviceCommand {
	return models.DeviceCommand{
		DeviceID:  "d1",
		CommandID: id,
		Name:      "setLockState",
		UserID:    "u1",
		State:     models.CommandStatePending,
	}
}

func ackedCommand(id string) models.DeviceCommand {
	cmd := pendingCommand(id)
	cmd.State = models.CommandStateAck
	return cmd
}

func newTestGateway(t *testing.T, api CommandAPI, handler CommandHandler) *Gateway {
	t.Helper()
	pool := utils.NewWorkerPool(4)
	t.Cleanup(pool.Shutdown)
	return New(api, handler, pool, zerolog.Nop())
}

func runCycle(t *testing.T, g *Gateway, payload string) FetchResult {
	t.Helper()
	var result FetchResult
	done := make(chan struct{})
	g.HandleNotification(context.Background(), []byte(payload), func(r FetchResult) {
		result = r
		close(done)
	})
	<-done
	return result
}

func TestGateway_MalformedPayloadFails(t *testing.T) {
	api := new(mocks.CommandAPI)
	handler := new(mocks.CommandHandler)
	g := newTestGateway(t, api, handler)

	assert.Equal(t, FetchFailed, runCycle(t, g, `{"bogus":`))
	api.AssertNotCalled(t, "PendingCommands", mock.Anything, mock.Anything)
}

func TestGateway_MissingDeviceIDFails(t *testing.T) {
	api := new(mocks.CommandAPI)
	handler := new(mocks.CommandHandler)
	g := newTestGateway(t, api, handler)

	assert.Equal(t, FetchFailed, runCycle(t, g, `{"lastCommand":{"commandId":"c1"}}`))
	api.AssertNotCalled(t, "PendingCommands", mock.Anything, mock.Anything)
}

func TestGateway_FetchFailureAbortsCycle(t *testing.T) {
	api := new(mocks.CommandAPI)
	handler := new(mocks.CommandHandler)
	api.On("PendingCommands", mock.Anything, "d1").Return(nil, errors.New("http 500"))
	g := newTestGateway(t, api, handler)

	assert.Equal(t, FetchFailed, runCycle(t, g, pushPayload))

	// No acks are issued when the fetch fails.
	api.AssertNotCalled(t, "UpdateCommandState", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	handler.AssertNotCalled(t, "HandleCommands", mock.Anything, mock.Anything)
}

func TestGateway_NoPendingCommandsReportsNoData(t *testing.T) {
	api := new(mocks.CommandAPI)
	handler := new(mocks.CommandHandler)
	api.On("PendingCommands", mock.Anything, "d1").Return([]models.DeviceCommand{}, nil)
	g := newTestGateway(t, api, handler)

	assert.Equal(t, FetchNoData, runCycle(t, g, pushPayload))
	handler.AssertNotCalled(t, "HandleCommands", mock.Anything, mock.Anything)
}

func TestGateway_ReservedCommandsNeverReachHandler(t *testing.T) {
	internal := pendingCommand("c-internal")
	internal.Name = "_update"

	api := new(mocks.CommandAPI)
	handler := new(mocks.CommandHandler)
	api.On("PendingCommands", mock.Anything, "d1").Return([]models.DeviceCommand{internal}, nil)
	g := newTestGateway(t, api, handler)

	assert.Equal(t, FetchNoData, runCycle(t, g, pushPayload))
	api.AssertNotCalled(t, "UpdateCommandState", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	handler.AssertNotCalled(t, "HandleCommands", mock.Anything, mock.Anything)
}

func TestGateway_FullCycle(t *testing.T) {
	api := new(mocks.CommandAPI)
	api.On("PendingCommands", mock.Anything, "d1").
		Return([]models.DeviceCommand{pendingCommand("c1"), pendingCommand("c2")}, nil)
	api.On("UpdateCommandState", mock.Anything, "d1", "c1", models.CommandStateAck, mock.Anything).
		Return(ackedCommand("c1"), nil)
	api.On("UpdateCommandState", mock.Anything, "d1", "c2", models.CommandStateAck, mock.Anything).
		Return(ackedCommand("c2"), nil)
	api.On("UpdateCommandState", mock.Anything, "d1", "c1", models.CommandStateSuccessful, mock.Anything).
		Return(models.DeviceCommand{}, nil)
	api.On("UpdateCommandState", mock.Anything, "d1", "c2", models.CommandStateFailed, mock.Anything).
		Return(models.DeviceCommand{}, nil)

	handler := new(mocks.CommandHandler)
	handler.On("HandleCommands", mock.Anything, mock.Anything).Return(
		func(_ context.Context, cmds []models.DeviceCommand) []models.DeviceCommand {
			out := make([]models.DeviceCommand, len(cmds))
			copy(out, cmds)
			for i := range out {
				if out[i].CommandID == "c1" {
					out[i].State = models.CommandStateSuccessful
				} else {
					out[i].State = models.CommandStateFailed
				}
			}
			return out
		}, nil)

	g := newTestGateway(t, api, handler)
	assert.Equal(t, FetchNewData, runCycle(t, g, pushPayload))

	api.AssertCalled(t, "UpdateCommandState", mock.Anything, "d1", "c1", models.CommandStateSuccessful, mock.Anything)
	api.AssertCalled(t, "UpdateCommandState", mock.Anything, "d1", "c2", models.CommandStateFailed, mock.Anything)
	handler.AssertNumberOfCalls(t, "HandleCommands", 1)
}

func TestGateway_HandlerOnlySeesAckedCommands(t *testing.T) {
	api := new(mocks.CommandAPI)
	api.On("PendingCommands", mock.Anything, "d1").
		Return([]models.DeviceCommand{pendingCommand("c1"), pendingCommand("c2")}, nil)
	// Acking c1 fails; c2 succeeds.
	api.On("UpdateCommandState", mock.Anything, "d1", "c1", models.CommandStateAck, mock.Anything).
		Return(models.DeviceCommand{}, errors.New("ack rejected"))
	api.On("UpdateCommandState", mock.Anything, "d1", "c2", models.CommandStateAck, mock.Anything).
		Return(ackedCommand("c2"), nil)
	api.On("UpdateCommandState", mock.Anything, "d1", "c2", models.CommandStateCompleted, mock.Anything).
		Return(models.DeviceCommand{}, nil)

	var handled []models.DeviceCommand
	var mu sync.Mutex
	handler := new(mocks.CommandHandler)
	handler.On("HandleCommands", mock.Anything, mock.Anything).Return(
		func(_ context.Context, cmds []models.DeviceCommand) []models.DeviceCommand {
			mu.Lock()
			handled = append([]models.DeviceCommand(nil), cmds...)
			mu.Unlock()
			out := make([]models.DeviceCommand, len(cmds))
			copy(out, cmds)
			for i := range out {
				out[i].State = models.CommandStateCompleted
			}
			return out
		}, nil)

	g := newTestGateway(t, api, handler)
	assert.Equal(t, FetchNewData, runCycle(t, g, pushPayload))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, handled, 1)
	assert.Equal(t, "c2", handled[0].CommandID)
	assert.Equal(t, models.CommandStateAck, handled[0].State)
}

func TestGateway_AllAcksFailSkipsHandler(t *testing.T) {
	api := new(mocks.CommandAPI)
	api.On("PendingCommands", mock.Anything, "d1").
		Return([]models.DeviceCommand{pendingCommand("c1")}, nil)
	api.On("UpdateCommandState", mock.Anything, "d1", "c1", models.CommandStateAck, mock.Anything).
		Return(models.DeviceCommand{}, errors.New("ack rejected"))

	handler := new(mocks.CommandHandler)
	g := newTestGateway(t, api, handler)

	assert.Equal(t, FetchNoData, runCycle(t, g, pushPayload))
	handler.AssertNotCalled(t, "HandleCommands", mock.Anything, mock.Anything)
}

func TestGateway_AckBarrierPrecedesHandler(t *testing.T) {
	const n = 6
	var acks int32
	var mu sync.Mutex

	cmds := make([]models.DeviceCommand, 0, n)
	for _, id := range []string{"c1", "c2", "c3", "c4", "c5", "c6"} {
		cmds = append(cmds, pendingCommand(id))
	}

	api := new(mocks.CommandAPI)
	api.On("PendingCommands", mock.Anything, "d1").Return(cmds, nil)
	for _, cmd := range cmds {
		cmd := cmd
		api.On("UpdateCommandState", mock.Anything, "d1", cmd.CommandID, models.CommandStateAck, mock.Anything).
			Run(func(mock.Arguments) {
				mu.Lock()
				acks++
				mu.Unlock()
			}).
			Return(ackedCommand(cmd.CommandID), nil)
		api.On("UpdateCommandState", mock.Anything, "d1", cmd.CommandID, models.CommandStateSuccessful, mock.Anything).
			Return(models.DeviceCommand{}, nil)
	}

	handler := new(mocks.CommandHandler)
	handler.On("HandleCommands", mock.Anything, mock.Anything).Return(
		func(_ context.Context, in []models.DeviceCommand) []models.DeviceCommand {
			// Every ack has completed before the handler runs, and every
			// delivered command has reached Ack state.
			mu.Lock()
			assert.Equal(t, int32(n), acks)
			mu.Unlock()
			out := make([]models.DeviceCommand, len(in))
			copy(out, in)
			for i := range out {
				assert.Equal(t, models.CommandStateAck, out[i].State)
				out[i].State = models.CommandStateSuccessful
			}
			return out
		}, nil)

	g := newTestGateway(t, api, handler)
	assert.Equal(t, FetchNewData, runCycle(t, g, pushPayload))
}

func TestGateway_ReportFailuresAreIsolated(t *testing.T) {
	api := new(mocks.CommandAPI)
	api.On("PendingCommands", mock.Anything, "d1").
		Return([]models.DeviceCommand{pendingCommand("c1"), pendingCommand("c2")}, nil)
	api.On("UpdateCommandState", mock.Anything, "d1", "c1", models.CommandStateAck, mock.Anything).
		Return(ackedCommand("c1"), nil)
	api.On("UpdateCommandState", mock.Anything, "d1", "c2", models.CommandStateAck, mock.Anything).
		Return(ackedCommand("c2"), nil)
	api.On("UpdateCommandState", mock.Anything, "d1", "c1", models.CommandStateSuccessful, mock.Anything).
		Return(models.DeviceCommand{}, errors.New("report failed"))
	api.On("UpdateCommandState", mock.Anything, "d1", "c2", models.CommandStateSuccessful, mock.Anything).
		Return(models.DeviceCommand{}, nil)

	handler := new(mocks.CommandHandler)
	handler.On("HandleCommands", mock.Anything, mock.Anything).Return(
		func(_ context.Context, cmds []models.DeviceCommand) []models.DeviceCommand {
			out := make([]models.DeviceCommand, len(cmds))
			copy(out, cmds)
			for i := range out {
				out[i].State = models.CommandStateSuccessful
			}
			return out
		}, nil)

	g := newTestGateway(t, api, handler)

	// A failed individual report does not fail the cycle.
	assert.Equal(t, FetchNewData, runCycle(t, g, pushPayload))
	api.AssertCalled(t, "UpdateCommandState", mock.Anything, "d1", "c2", models.CommandStateSuccessful, mock.Anything)
}

func TestGateway_IllegalHandlerStateNotReported(t *testing.T) {
	api := new(mocks.CommandAPI)
	api.On("PendingCommands", mock.Anything, "d1").
		Return([]models.DeviceCommand{pendingCommand("c1")}, nil)
	api.On("UpdateCommandState", mock.Anything, "d1", "c1", models.CommandStateAck, mock.Anything).
		Return(ackedCommand("c1"), nil)

	handler := new(mocks.CommandHandler)
	handler.On("HandleCommands", mock.Anything, mock.Anything).Return(
		func(_ context.Context, cmds []models.DeviceCommand) []models.DeviceCommand {
			out := make([]models.DeviceCommand, len(cmds))
			copy(out, cmds)
			out[0].State = models.CommandStatePending // not a legal outcome
			return out
		}, nil)

	g := newTestGateway(t, api, handler)
	assert.Equal(t, FetchNewData, runCycle(t, g, pushPayload))

	// The illegal transition is rejected locally; no update call is made.
	api.AssertNotCalled(t, "UpdateCommandState", mock.Anything, "d1", "c1", models.CommandStatePending, mock.Anything)
}

func TestGateway_HandlerErrorFailsCycle(t *testing.T) {
	api := new(mocks.CommandAPI)
	api.On("PendingCommands", mock.Anything, "d1").
		Return([]models.DeviceCommand{pendingCommand("c1")}, nil)
	api.On("UpdateCommandState", mock.Anything, "d1", "c1", models.CommandStateAck, mock.Anything).
		Return(ackedCommand("c1"), nil)

	handler := new(mocks.CommandHandler)
	handler.On("HandleCommands", mock.Anything, mock.Anything).Return(nil, errors.New("handler blew up"))

	g := newTestGateway(t, api, handler)
	assert.Equal(t, FetchFailed, runCycle(t, g, pushPayload))
}
