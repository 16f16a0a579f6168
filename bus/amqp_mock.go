package bus

import (
	"fmt"

	"github.com/streadway/amqp"
)

// MockAMQPConnection is a test double for AMQPConnection.
type MockAMQPConnection struct {
	MockChannel AMQPChannel
	ChannelErr  error
	CloseErr    error
	ChannelCalled bool
	CloseCalled   bool
}

func (m *MockAMQPConnection) Channel() (AMQPChannel, error) {
	m.ChannelCalled = true
	if m.ChannelErr != nil {
		return nil, m.ChannelErr
	}
	return m.MockChannel, nil
}

func (m *MockAMQPConnection) Close() error {
	m.CloseCalled = true
	return m.CloseErr
}

// MockAMQPChannel is a test double for AMQPChannel. It records published
// messages per routing key and lets tests inject deliveries via Deliveries.
type MockAMQPChannel struct {
	PublishedMessages []amqp.Publishing
	PublishedKeys     []string

	ExchangeDeclareErr error
	QueueDeclareErr     error
	QueueBindErr        error
	QosErr              error
	PublishErr          error
	CloseErr            error

	LastExchange string
	LastKey      string

	// Deliveries, when set, is returned from Consume for any queue name.
	Deliveries chan amqp.Delivery
}

func (m *MockAMQPChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	return m.ExchangeDeclareErr
}

func (m *MockAMQPChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	if m.QueueDeclareErr != nil {
		return amqp.Queue{}, m.QueueDeclareErr
	}
	return amqp.Queue{Name: name}, nil
}

func (m *MockAMQPChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	return m.QueueBindErr
}

func (m *MockAMQPChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	return m.QosErr
}

func (m *MockAMQPChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	m.LastExchange = exchange
	m.LastKey = key
	if m.PublishErr != nil {
		return m.PublishErr
	}
	m.PublishedMessages = append(m.PublishedMessages, msg)
	m.PublishedKeys = append(m.PublishedKeys, key)
	return nil
}

func (m *MockAMQPChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	if m.Deliveries == nil {
		m.Deliveries = make(chan amqp.Delivery)
	}
	return m.Deliveries, nil
}

func (m *MockAMQPChannel) Close() error {
	return m.CloseErr
}

// MockAMQPDialer is a test double for AMQPDialer.
type MockAMQPDialer struct {
	MockConnection AMQPConnection
	DialErr        error
	LastURL        string
}

func (m *MockAMQPDialer) Dial(url string) (AMQPConnection, error) {
	m.LastURL = url
	if m.DialErr != nil {
		return nil, m.DialErr
	}
	return m.MockConnection, nil
}

// NewMockAMQPDialer wires a mock dialer, connection and channel together for
// the common case of "publish succeeds, let me inspect what was sent".
func NewMockAMQPDialer() (*MockAMQPDialer, *MockAMQPChannel) {
	mockChannel := &MockAMQPChannel{
		PublishedMessages: make([]amqp.Publishing, 0),
		PublishedKeys:     make([]string, 0),
	}
	mockConn := &MockAMQPConnection{MockChannel: mockChannel}
	return &MockAMQPDialer{MockConnection: mockConn}, mockChannel
}

// NewMockAMQPDialerWithError builds a dialer whose Dial always fails.
func NewMockAMQPDialerWithError(err error) *MockAMQPDialer {
	if err == nil {
		err = fmt.Errorf("mock dial failure")
	}
	return &MockAMQPDialer{DialErr: err}
}
