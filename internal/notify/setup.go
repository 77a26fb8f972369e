package notify

import (
	"fmt"

	"go.uber.org/zap"
)

type Channels struct {
	Email        EmailConfig // Host == "" disables email
	KafkaBrokers []string    // empty disables publishing
	KafkaTopic   string
	Source       string // service name stamped on published events
}

// Build assembles the notifiers enabled in ch. The log channel is always on.
// The returned close func releases publisher connections.
func Build(ch Channels, logger *zap.Logger) (Notifier, func() error, error) {
	fanout := Fanout{NewLogNotifier(logger)}
	closeFn := func() error { return nil }

	if ch.Email.Host != "" {
		fanout = append(fanout, NewEmailNotifier(ch.Email))
		logger.Info("email notifications enabled", zap.String("smtp_host", ch.Email.Host))
	}

	if len(ch.KafkaBrokers) > 0 {
		pub, err := NewKafkaPublisher(ch.KafkaBrokers, ch.KafkaTopic, ch.Source)
		if err != nil {
			return nil, nil, fmt.Errorf("kafka publisher: %w", err)
		}
		fanout = append(fanout, pub)
		closeFn = pub.Close
		logger.Info("event publishing enabled",
			zap.Strings("brokers", ch.KafkaBrokers),
			zap.String("topic", ch.KafkaTopic),
		)
	}

	return fanout, closeFn, nil
}
