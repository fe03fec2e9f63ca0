// Package telemetry publishes the spectrometer state over MQTT so that lab
// dashboards can follow cooldowns without polling the HTTP API.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"spectrad/pkg/config"
	"spectrad/pkg/server"
)

// createMQTTClient initializes and connects a new MQTT client from the
// service configuration.
func createMQTTClient(cfg config.MQTTConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.SetClientID("spectrad")
	opts.AddBroker(cfg.Broker)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %v", token.Error())
	}
	return client, nil
}

// Publisher periodically samples the server status and publishes it.
type Publisher struct {
	client   mqtt.Client
	srv      *server.Server
	root     string
	interval time.Duration
	logger   log.FieldLogger
}

func NewPublisher(cfg config.MQTTConfig, srv *server.Server, interval time.Duration, logger log.FieldLogger) (*Publisher, error) {
	client, err := createMQTTClient(cfg)
	if err != nil {
		return nil, err
	}

	return &Publisher{
		client:   client,
		srv:      srv,
		root:     cfg.TopicRoot,
		interval: interval,
		logger:   logger.WithField("component", "telemetry"),
	}, nil
}

// Run publishes until the context is cancelled, then disconnects.
func (p *Publisher) Run(ctx context.Context) {
	p.logger.Infof("Publishing telemetry every %s under %s/", p.interval, p.root)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.client.Disconnect(100)
			p.logger.Info("Telemetry publisher stopped")
			return
		case <-ticker.C:
			p.publish()
		}
	}
}

func (p *Publisher) publish() {
	if !p.client.IsConnected() {
		p.logger.Warn("MQTT client is not connected, skipping publish")
		return
	}

	status := p.srv.Status()

	payload, err := json.Marshal(status)
	if err != nil {
		p.logger.Errorf("Failed to marshal status: %v", err)
		return
	}
	if token := p.client.Publish(p.root+"/state", 0, true, payload); token.Wait() && token.Error() != nil {
		p.logger.Errorf("Failed to publish state: %v", token.Error())
	}

	// The raw temperature goes out on its own topic so plotters do not
	// have to parse JSON.
	if status.Temperature != nil {
		value := strconv.FormatFloat(*status.Temperature, 'f', 2, 64)
		if token := p.client.Publish(p.root+"/temperature", 0, true, value); token.Wait() && token.Error() != nil {
			p.logger.Errorf("Failed to publish temperature: %v", token.Error())
		}
	}
}
