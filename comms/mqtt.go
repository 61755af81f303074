package comms

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/CodedInternet/gosbrick/onboard"
	"github.com/CodedInternet/gosbrick/onboard/hardware"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	MQTT_QOS             = 1
	MQTT_PUBLISH_TIMEOUT = 5 * time.Second
	MQTT_RETRY_INTERVAL  = 5 * time.Second
)

type publishClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Publisher reports keep-alive runs and telemetry to an MQTT broker under
// sbrick/<name>/.
type Publisher struct {
	Name   string
	client publishClient
}

func NewPublisher(broker, name string) (p *Publisher, err error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(fmt.Sprintf("gosbrick-%s", name))
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(MQTT_RETRY_INTERVAL)
	opts.OnConnect = func(client mqtt.Client) {
		log.WithField("broker", broker).Info("connected to MQTT broker")
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		log.WithError(err).Warn("MQTT connection lost")
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.WaitTimeout(MQTT_PUBLISH_TIMEOUT) && token.Error() != nil {
		return nil, token.Error()
	}

	return &Publisher{Name: name, client: client}, nil
}

func (p *Publisher) topic(kind string) string {
	return fmt.Sprintf("sbrick/%s/%s", p.Name, kind)
}

func (p *Publisher) publish(kind string, v interface{}) error {
	msg, err := json.Marshal(v)
	if err != nil {
		return err
	}

	token := p.client.Publish(p.topic(kind), MQTT_QOS, false, msg)
	if !token.WaitTimeout(MQTT_PUBLISH_TIMEOUT) {
		return fmt.Errorf("publish to %s timed out", p.topic(kind))
	}
	return token.Error()
}

type runMessage struct {
	hardware.RunResult
	Error string `json:"error,omitempty"`
}

// PublishRun is shaped to be registered with SBrick.OnRunExit.
func (p *Publisher) PublishRun(result hardware.RunResult) {
	msg := runMessage{RunResult: result}
	if result.Err != nil {
		msg.Error = result.Err.Error()
	}

	if err := p.publish("keepalive", msg); err != nil {
		log.WithError(err).Warn("unable to publish keep alive result")
	}
}

func (p *Publisher) PublishTelemetry(t hardware.Telemetry) error {
	return p.publish("telemetry", t)
}

// PollTelemetry publishes device telemetry every interval until ctx is done.
func (p *Publisher) PollTelemetry(ctx context.Context, device onboard.SBrick, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		t, err := device.Telemetry()
		if err != nil {
			log.WithError(err).Warn("unable to read telemetry")
			continue
		}
		if err = p.PublishTelemetry(t); err != nil {
			log.WithError(err).Warn("unable to publish telemetry")
		}
	}
}
