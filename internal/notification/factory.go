package notification

import (
	"fmt"
	"log/slog"
	"strings"
)

// Options selects and configures a notifier backend.
type Options struct {
	Backend      string
	KafkaBrokers []string
	KafkaTopic   string
	NatsURL      string
	NatsSubject  string
}

// New builds the notifier selected by opts.Backend. The returned closer
// releases broker connections and is never nil.
func New(opts Options, logger *slog.Logger) (Notifier, func() error, error) {
	noop := func() error { return nil }
	switch strings.ToLower(opts.Backend) {
	case "", "log":
		return NewLoggerNotifier(logger), noop, nil
	case "kafka":
		if len(opts.KafkaBrokers) == 0 || opts.KafkaTopic == "" {
			return nil, noop, fmt.Errorf("kafka notifier requires brokers and topic")
		}
		n := NewKafkaNotifier(opts.KafkaBrokers, opts.KafkaTopic)
		return n, n.Close, nil
	case "nats":
		if opts.NatsURL == "" || opts.NatsSubject == "" {
			return nil, noop, fmt.Errorf("nats notifier requires url and subject")
		}
		n, err := NewNatsNotifier(opts.NatsURL, opts.NatsSubject)
		if err != nil {
			return nil, noop, err
		}
		return n, n.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown notifier %q", opts.Backend)
	}
}
