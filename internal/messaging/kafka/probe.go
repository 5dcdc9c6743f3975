package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/nsridhar76/go-orderrelay/internal/health"
)

type metadataConn interface {
	Brokers() ([]kafkago.Broker, error)
	SetDeadline(t time.Time) error
	Close() error
}

type dialFunc func(ctx context.Context, network, address string) (metadataConn, error)

func dialKafka(ctx context.Context, network, address string) (metadataConn, error) {
	conn, err := kafkago.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Probe checks broker connectivity by requesting cluster metadata over a
// short-lived connection. It never reads or writes application data.
type Probe struct {
	brokers []string
	timeout time.Duration
	dial    dialFunc
}

var errNoBrokers = errors.New("cluster metadata lists no brokers")

// DefaultProbeTimeout bounds a probe when no timeout is configured.
const DefaultProbeTimeout = 3 * time.Second

func NewProbe(brokers []string, timeout time.Duration) *Probe {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &Probe{brokers: brokers, timeout: timeout, dial: dialKafka}
}

// Check tries each bootstrap broker in turn and reports healthy as soon as
// one returns metadata listing at least one broker.
func (p *Probe) Check(ctx context.Context) health.Result {
	if len(p.brokers) == 0 {
		return health.Unhealthy("no bootstrap brokers configured", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var errs []error
	for _, addr := range p.brokers {
		brokers, err := p.metadata(ctx, addr)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", addr, err))
			continue
		}
		if len(brokers) == 0 {
			errs = append(errs, fmt.Errorf("%s: %w", addr, errNoBrokers))
			continue
		}
		return health.Healthy(fmt.Sprintf("%d broker(s) in cluster metadata from %s", len(brokers), addr))
	}
	return health.Unhealthy("kafka metadata request failed", errors.Join(errs...))
}

func (p *Probe) metadata(ctx context.Context, addr string) ([]kafkago.Broker, error) {
	conn, err := p.dial(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(p.timeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}

	brokers, err := conn.Brokers()
	if err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	return brokers, nil
}
