// Package gateway reacts to push-notification wake-ups: it fetches the
// pending commands for the referenced device, acknowledges them, hands the
// batch to the application handler, and reports each command's outcome back
// to the backend.
package gateway

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/yonomi/thincloud-sdk/internal/commands"
	"github.com/yonomi/thincloud-sdk/internal/models"
	"github.com/yonomi/thincloud-sdk/internal/utils"
)

// FetchResult is reported to the platform's completion signal after an
// ingestion cycle.
type FetchResult int

const (
	// FetchFailed indicates the cycle aborted before commands could be
	// processed.
	FetchFailed FetchResult = iota
	// FetchNoData indicates the wake-up surfaced no commands for the handler.
	FetchNoData
	// FetchNewData indicates commands were delivered to the handler.
	FetchNewData
)

func (r FetchResult) String() string {
	switch r {
	case FetchNewData:
		return "new_data"
	case FetchNoData:
		return "no_data"
	default:
		return "failed"
	}
}

// CommandHandler is the application extension point for reacting to incoming
// commands. It receives the acknowledged batch and returns the same commands
// annotated with a terminal state and optional response payload.
type CommandHandler interface {
	HandleCommands(ctx context.Context, cmds []models.DeviceCommand) ([]models.DeviceCommand, error)
}

// CommandHandlerFunc adapts a function to the CommandHandler interface.
type CommandHandlerFunc func(ctx context.Context, cmds []models.DeviceCommand) ([]models.DeviceCommand, error)

func (f CommandHandlerFunc) HandleCommands(ctx context.Context, cmds []models.DeviceCommand) ([]models.DeviceCommand, error) {
	return f(ctx, cmds)
}

// CommandAPI is the authenticated backend surface the gateway calls out to.
type CommandAPI interface {
	PendingCommands(ctx context.Context, deviceID string) ([]models.DeviceCommand, error)
	UpdateCommandState(ctx context.Context, deviceID, commandID string, state models.CommandState, response map[string]any) (models.DeviceCommand, error)
}

// Gateway is the command ingestion pipeline.
type Gateway struct {
	api     CommandAPI
	handler CommandHandler
	pool    *utils.WorkerPool
	logger  zerolog.Logger
}

// New builds a Gateway delivering commands to handler through the given pool.
func New(api CommandAPI, handler CommandHandler, pool *utils.WorkerPool, logger zerolog.Logger) *Gateway {
	return &Gateway{
		api:     api,
		handler: handler,
		pool:    pool,
		logger:  logger,
	}
}

// reserved reports whether a command is internal housekeeping (such as
// "_update") that must never reach application code.
func reserved(cmd models.DeviceCommand) bool {
	return strings.HasPrefix(cmd.Name, "_")
}

// HandleNotification runs one ingestion cycle for a raw push payload and
// invokes complete with the result to report to the platform.
func (g *Gateway) HandleNotification(ctx context.Context, payload []byte, complete func(FetchResult)) {
	note, err := models.ParsePushNotification(payload)
	if err != nil {
		g.logger.Error().Err(err).Msg("Failed to parse push notification")
		complete(FetchFailed)
		return
	}

	complete(g.ingest(ctx, note))
}

// ingest implements the fetch -> ack -> handle -> report cycle. The ack
// barrier strictly precedes the handler, and the handler strictly precedes
// the report barrier.
func (g *Gateway) ingest(ctx context.Context, note models.PushNotificationPayload) FetchResult {
	log := g.logger.With().Str("device_id", note.DeviceID).Logger()

	pending, err := g.api.PendingCommands(ctx, note.DeviceID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch pending commands")
		return FetchFailed
	}

	deliverable := pending[:0:0]
	for _, cmd := range pending {
		if reserved(cmd) {
			log.Debug().Str("command_id", cmd.CommandID).Str("name", cmd.Name).Msg("Skipping reserved command")
			continue
		}
		deliverable = append(deliverable, cmd)
	}

	if len(deliverable) == 0 {
		log.Debug().Msg("No deliverable commands for wake-up")
		return FetchNoData
	}

	acked := g.acknowledge(ctx, log, deliverable)
	if len(acked) == 0 {
		// Every ack failed; the commands stay Pending and a later wake-up
		// re-surfaces them.
		return FetchNoData
	}

	updated, err := g.handler.HandleCommands(ctx, acked)
	if err != nil {
		log.Error().Err(err).Msg("Command handler failed, outcomes will not be reported")
		return FetchFailed
	}

	g.report(ctx, log, updated)
	return FetchNewData
}

// acknowledge fans one Ack update per command out over the pool and waits for
// all of them. A command whose ack fails is dropped from the batch without
// aborting its siblings; enqueue order is preserved for the survivors.
func (g *Gateway) acknowledge(ctx context.Context, log zerolog.Logger, cmds []models.DeviceCommand) []models.DeviceCommand {
	results := make([]*models.DeviceCommand, len(cmds))

	var wg sync.WaitGroup
	for i, cmd := range cmds {
		i, cmd := i, cmd
		wg.Add(1)
		g.pool.Submit(func() {
			defer wg.Done()
			updated, err := g.api.UpdateCommandState(ctx, cmd.DeviceID, cmd.CommandID, models.CommandStateAck, nil)
			if err != nil {
				log.Warn().Err(err).Str("command_id", cmd.CommandID).Msg("Failed to acknowledge command")
				return
			}
			results[i] = &updated
		})
	}
	wg.Wait()

	acked := make([]models.DeviceCommand, 0, len(cmds))
	for _, r := range results {
		if r != nil {
			acked = append(acked, *r)
		}
	}
	return acked
}

// report fans the handler's terminal states back to the backend. Individual
// failures are logged and not retried; delivery is best effort.
func (g *Gateway) report(ctx context.Context, log zerolog.Logger, cmds []models.DeviceCommand) {
	var wg sync.WaitGroup
	for _, cmd := range cmds {
		cmd := cmd
		if err := commands.ValidateClientTransition(models.CommandStateAck, cmd.State); err != nil {
			log.Warn().Err(err).Str("command_id", cmd.CommandID).Msg("Handler returned an illegal command state")
			continue
		}
		wg.Add(1)
		g.pool.Submit(func() {
			defer wg.Done()
			if _, err := g.api.UpdateCommandState(ctx, cmd.DeviceID, cmd.CommandID, cmd.State, cmd.Response); err != nil {
				log.Warn().Err(err).Str("command_id", cmd.CommandID).Msg("Failed to report command outcome")
			}
		})
	}
	wg.Wait()
}
