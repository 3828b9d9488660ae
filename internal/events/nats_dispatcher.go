package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/sirupsen/logrus"
)

// StreamComplaints holds every complaint.* subject
const StreamComplaints = "COMPLAINT_EVENTS"

// NATSDispatcher publishes events to JetStream in the background
type NATSDispatcher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	logger  *logrus.Entry
	timeout time.Duration
}

// NewNATSDispatcher connects to NATS and makes sure the complaint stream exists
func NewNATSDispatcher(url string, logger *logrus.Logger) (*NATSDispatcher, error) {
	if logger == nil {
		logger = logrus.New()
	}
	log := logger.WithField("component", "complaint-events")

	nc, err := nats.Connect(url,
		nats.Name("complaint-workflow-service"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.ReconnectBufSize(8*1024*1024),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infof("Reconnected to NATS at %s", nc.ConnectedUrl())
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.WithError(err).Warn("Disconnected from NATS")
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Info("NATS connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamComplaints,
		Subjects:  []string{"complaint.>"},
		Retention: jetstream.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Storage:   jetstream.FileStorage,
		Replicas:  1,
	})
	if err != nil {
		log.WithError(err).Warn("Failed to ensure complaint stream (may already exist)")
	}

	return &NATSDispatcher{
		nc:      nc,
		js:      js,
		logger:  log,
		timeout: 10 * time.Second,
	}, nil
}

// Dispatch publishes asynchronously. Failures are logged, never returned.
func (d *NATSDispatcher) Dispatch(ctx context.Context, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		d.logger.WithError(err).WithField("subject", event.Subject()).Error("Failed to encode event")
		return
	}

	go func() {
		pubCtx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		fields := logrus.Fields{
			"subject":     event.Subject(),
			"complaintId": event.Key(),
		}
		if _, err := d.js.Publish(pubCtx, event.Subject(), data); err != nil {
			d.logger.WithFields(fields).WithError(err).Error("Failed to publish complaint event")
			return
		}
		d.logger.WithFields(fields).Debug("Complaint event published")
	}()
}

// Close drains the NATS connection
func (d *NATSDispatcher) Close() {
	if d.nc != nil {
		if err := d.nc.Drain(); err != nil {
			d.nc.Close()
		}
	}
}
