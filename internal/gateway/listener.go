package gateway

import (
	"context"
	"errors"
	"sync"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/yonomi/thincloud-sdk/pkg/mqtt"
)

// Listener connects the gateway to an MQTT push-notification channel: every
// message on the configured topic is treated as a wake-up payload and runs
// one ingestion cycle.
type Listener struct {
	topic string
	qos   int

	mqttClient mqtt.MQTTClient
	gw         *Gateway
	logger     zerolog.Logger

	mu       sync.Mutex
	stopChan chan struct{}
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewListener builds a Listener for the given topic.
func NewListener(topic string, qos int, mqttClient mqtt.MQTTClient, gw *Gateway, logger zerolog.Logger) *Listener {
	return &Listener{
		topic:      topic,
		qos:        qos,
		mqttClient: mqttClient,
		gw:         gw,
		logger:     logger,
	}
}

// Start subscribes to the notification topic and begins processing wake-ups.
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ctx != nil {
		return errors.New("gateway listener is already running")
	}
	l.ctx, l.cancel = context.WithCancel(context.Background())
	l.stopChan = make(chan struct{})

	l.logger.Info().Str("topic", l.topic).Msg("Starting gateway listener")
	token := l.mqttClient.Subscribe(l.topic, byte(l.qos), l.onMessage)
	token.Wait()
	if err := token.Error(); err != nil {
		l.logger.Error().Err(err).Str("topic", l.topic).Msg("Failed to subscribe to notification topic")
		l.cancel()
		l.ctx = nil
		l.cancel = nil
		return err
	}

	return nil
}

// onMessage runs one ingestion cycle per notification without blocking the
// MQTT receive loop.
func (l *Listener) onMessage(_ MQTT.Client, msg MQTT.Message) {
	l.mu.Lock()
	select {
	case <-l.stopChan:
		l.mu.Unlock()
		l.logger.Warn().Msg("Dropping notification received while stopping")
		return
	default:
	}
	ctx := l.ctx
	l.wg.Add(1)
	l.mu.Unlock()

	payload := msg.Payload()
	go func() {
		defer l.wg.Done()
		l.gw.HandleNotification(ctx, payload, func(result FetchResult) {
			l.logger.Info().Str("result", result.String()).Msg("Ingestion cycle finished")
		})
	}()
}

// Stop unsubscribes and waits for in-flight ingestion cycles to finish.
func (l *Listener) Stop() error {
	l.mu.Lock()
	if l.ctx == nil {
		l.mu.Unlock()
		return errors.New("gateway listener is not running")
	}
	close(l.stopChan)
	l.cancel()
	l.ctx = nil
	l.cancel = nil
	l.mu.Unlock()

	l.wg.Wait()

	token := l.mqttClient.Unsubscribe(l.topic)
	token.Wait()
	if err := token.Error(); err != nil {
		l.logger.Error().Err(err).Str("topic", l.topic).Msg("Failed to unsubscribe from notification topic")
		return err
	}

	l.logger.Info().Msg("Gateway listener stopped")
	return nil
}
