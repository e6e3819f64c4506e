package mocks

import (
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/mock"
)

// MQTTClient is a mock implementation of the pkg/mqtt MQTTClient interface.
type MQTTClient struct {
	mock.Mock
}

func (m *MQTTClient) Connect() mqtt.Token {
	args := m.Called()
	return args.Get(0).(mqtt.Token)
}

func (m *MQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	args := m.Called(topic, qos, retained, payload)
	return args.Get(0).(mqtt.Token)
}

func (m *MQTTClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	args := m.Called(topic, qos, callback)
	return args.Get(0).(mqtt.Token)
}

func (m *MQTTClient) Unsubscribe(topics ...string) mqtt.Token {
	args := m.Called(topics)
	return args.Get(0).(mqtt.Token)
}

func (m *MQTTClient) Disconnect(quiesce uint) {
	m.Called(quiesce)
}

// MQTTToken is a mock implementation of the paho Token interface.
type MQTTToken struct {
	mock.Mock
}

func (m *MQTTToken) Wait() bool {
	return m.Called().Bool(0)
}

func (m *MQTTToken) WaitTimeout(d time.Duration) bool {
	return m.Called(d).Bool(0)
}

func (m *MQTTToken) Done() <-chan struct{} {
	return m.Called().Get(0).(<-chan struct{})
}

func (m *MQTTToken) Error() error {
	return m.Called().Error(0)
}

// Message implements mqtt.Message for tests.
type Message struct {
	payload []byte
	topic   string
}

// NewMessage creates a mock MQTT message.
func NewMessage(topic string, payload []byte) *Message {
	return &Message{payload: payload, topic: topic}
}

func (m *Message) Payload() []byte   { return m.payload }
func (m *Message) Topic() string     { return m.topic }
func (m *Message) Duplicate() bool   { return false }
func (m *Message) Qos() byte         { return 1 }
func (m *Message) Retained() bool    { return false }
func (m *Message) MessageID() uint16 { return 1 }
func (m *Message) Ack()              {}
