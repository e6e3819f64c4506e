package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yonomi/thincloud-sdk/internal/client"
	"github.com/yonomi/thincloud-sdk/internal/gateway"
	"github.com/yonomi/thincloud-sdk/internal/models"
	"github.com/yonomi/thincloud-sdk/internal/utils"
	"github.com/yonomi/thincloud-sdk/pkg/file"
	"github.com/yonomi/thincloud-sdk/pkg/mqtt"
	"github.com/yonomi/thincloud-sdk/pkg/store"
)

// loggingHandler acknowledges every command by logging it and marking it
// successful. Real deployments replace this with their own CommandHandler.
func loggingHandler(logger zerolog.Logger) gateway.CommandHandlerFunc {
	return func(_ context.Context, cmds []models.DeviceCommand) ([]models.DeviceCommand, error) {
		out := make([]models.DeviceCommand, len(cmds))
		copy(out, cmds)
		for i := range out {
			logger.Info().
				Str("device_id", out[i].DeviceID).
				Str("command_id", out[i].CommandID).
				Str("name", out[i].Name).
				Msg("Handling command")
			out[i].State = models.CommandStateSuccessful
		}
		return out, nil
	}
}

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	fileClient := file.NewFileService()
	config, err := utils.LoadConfig("configs/config.yaml", fileClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	kv, err := store.OpenBolt(config.Storage.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open session store")
	}
	defer kv.Close()

	sdk, err := client.New(client.Config{
		Instance: config.Cloud.Instance,
		ClientID: config.Cloud.ClientID,
		APIKey:   config.Cloud.APIKey,
		BaseURL:  config.Cloud.BaseURL,
	}, kv, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build SDK client")
	}

	if !sdk.Authenticated() {
		logger.Fatal().Msg("No persisted session; sign in before starting the agent")
	}

	if !config.Gateway.Enabled {
		logger.Info().Msg("Gateway disabled, nothing to do")
		return
	}

	mqttClient := mqtt.NewMqttService(fileClient)
	mqttClientID := config.Gateway.ClientID + "-" + uuid.NewString()
	if err := mqttClient.Initialize(config.Gateway.Broker, mqttClientID, config.Gateway.CACertificate); err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to the notification broker")
	}
	defer mqttClient.Disconnect(250)

	pool := utils.NewWorkerPool(config.Gateway.Workers)
	defer pool.Shutdown()

	gw := gateway.New(sdk, loggingHandler(logger), pool, logger)
	listener := gateway.NewListener(config.Gateway.Topic, config.Gateway.QOS, mqttClient, gw, logger)
	if err := listener.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start gateway listener")
	}

	logger.Info().Str("topic", config.Gateway.Topic).Msg("Agent started")

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	logger.Info().Msg("Shutting down gracefully...")
	if err := listener.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop gateway listener")
	}
}
