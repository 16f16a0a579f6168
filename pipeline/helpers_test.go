package pipeline

import (
	"encoding/json"

	"github.com/streadway/amqp"
)

func jsonMarshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func testDelivery(body []byte, ack amqp.Acknowledger) amqp.Delivery {
	return amqp.Delivery{Acknowledger: ack, Body: body}
}
