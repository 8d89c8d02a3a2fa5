// Package provision makes sure the relay's Kafka topics exist and report
// partitions before any consumer subscribes.
package provision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff/v5"

	errspkg "github.com/drblury/eventrelay/internal/runtime/errors"
	loggingpkg "github.com/drblury/eventrelay/internal/runtime/logging"
)

const (
	DefaultMaxAttempts = 10
	DefaultDelay       = 2 * time.Second

	// partitions is fixed: ordering per topic relies on a single partition.
	partitions = 1
)

// ClusterAdmin is the subset of sarama.ClusterAdmin the provisioner uses.
type ClusterAdmin interface {
	ListTopics() (map[string]sarama.TopicDetail, error)
	CreateTopic(topic string, detail *sarama.TopicDetail, validateOnly bool) error
	DescribeTopics(topics []string) ([]*sarama.TopicMetadata, error)
	DescribeCluster() (brokers []*sarama.Broker, controllerID int32, err error)
	Close() error
}

// AdminFactory allows overriding the admin client creation for testing.
var AdminFactory = func(brokers []string, cfg *sarama.Config) (ClusterAdmin, error) {
	return sarama.NewClusterAdmin(brokers, cfg)
}

// Config tunes a Provisioner. Zero values fall back to the package defaults.
type Config struct {
	Brokers     []string
	ClientID    string
	MaxAttempts int
	Delay       time.Duration
	// ReplicationFactor of zero matches the number of brokers in the cluster.
	ReplicationFactor int16
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.Delay <= 0 {
		c.Delay = DefaultDelay
	}
	return c
}

// Provisioner creates missing topics and waits for their partitions.
type Provisioner struct {
	cfg    Config
	logger loggingpkg.ServiceLogger
}

// New returns a Provisioner. A nil logger discards output.
func New(cfg Config, logger loggingpkg.ServiceLogger) *Provisioner {
	if logger == nil {
		logger = loggingpkg.NewNopLogger()
	}
	return &Provisioner{
		cfg:    cfg.withDefaults(),
		logger: logger.With(loggingpkg.LogFields{"component": "provisioner"}),
	}
}

var errNotReady = errors.New("not ready")

// EnsureTopics returns nil once every topic exists with at least one
// partition. Exhausted retries and non-retryable admin errors come back as
// *errors.ProvisioningError; cancellation returns the context error.
func (p *Provisioner) EnsureTopics(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}

	admin, existing, err := p.connect(ctx, names)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := admin.Close(); cerr != nil {
			p.logger.Warn("Closing cluster admin failed", cerr, nil)
		}
	}()

	var replication int16
	for _, name := range names {
		if _, ok := existing[name]; ok {
			p.logger.Info("Topic already exists", loggingpkg.LogFields{"topic": name})
		} else {
			if replication == 0 {
				if replication, err = p.replicationFactor(admin); err != nil {
					return &errspkg.ProvisioningError{Topic: name, Attempts: 1, Err: err}
				}
			}
			if err := p.create(admin, name, replication); err != nil {
				return &errspkg.ProvisioningError{Topic: name, Attempts: 1, Err: err}
			}
		}

		if err := p.waitForTopic(ctx, admin, name); err != nil {
			return err
		}
	}
	return nil
}

type connection struct {
	admin    ClusterAdmin
	existing map[string]sarama.TopicDetail
}

// connect opens the admin client and lists topics, retrying both with the
// same bounded budget.
func (p *Provisioner) connect(ctx context.Context, names []string) (ClusterAdmin, map[string]sarama.TopicDetail, error) {
	saramaCfg := sarama.NewConfig()
	if p.cfg.ClientID != "" {
		saramaCfg.ClientID = p.cfg.ClientID
	}

	attempts := 0
	conn, err := backoff.Retry(ctx, func() (connection, error) {
		attempts++
		admin, err := AdminFactory(p.cfg.Brokers, saramaCfg)
		if err != nil {
			return connection{}, err
		}
		existing, err := admin.ListTopics()
		if err != nil {
			_ = admin.Close()
			return connection{}, err
		}
		return connection{admin: admin, existing: existing}, nil
	}, p.retryOptions("connect", strings.Join(names, ","))...)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		return nil, nil, &errspkg.ProvisioningError{Topic: strings.Join(names, ","), Attempts: attempts, Err: err}
	}
	return conn.admin, conn.existing, nil
}

func (p *Provisioner) replicationFactor(admin ClusterAdmin) (int16, error) {
	if p.cfg.ReplicationFactor > 0 {
		return p.cfg.ReplicationFactor, nil
	}
	brokers, _, err := admin.DescribeCluster()
	if err != nil {
		return 0, fmt.Errorf("describe cluster: %w", err)
	}
	if len(brokers) == 0 {
		return 1, nil
	}
	return int16(len(brokers)), nil
}

func (p *Provisioner) create(admin ClusterAdmin, name string, replication int16) error {
	err := admin.CreateTopic(name, &sarama.TopicDetail{
		NumPartitions:     partitions,
		ReplicationFactor: replication,
	}, false)
	switch {
	case err == nil:
		p.logger.Info("Topic created", loggingpkg.LogFields{
			"topic":              name,
			"partitions":         partitions,
			"replication_factor": replication,
		})
		return nil
	case hasKError(err, sarama.ErrTopicAlreadyExists):
		p.logger.Info("Topic created concurrently", loggingpkg.LogFields{"topic": name})
		return nil
	default:
		return fmt.Errorf("create topic: %w", err)
	}
}

// waitForTopic polls metadata until the topic reports a partition.
func (p *Provisioner) waitForTopic(ctx context.Context, admin ClusterAdmin, name string) error {
	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		ready, err := topicReady(admin, name)
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		if !ready {
			return struct{}{}, errNotReady
		}
		return struct{}{}, nil
	}, p.retryOptions("describe", name)...)

	switch {
	case err == nil:
		p.logger.Debug("Topic ready", loggingpkg.LogFields{"topic": name, "attempts": attempts})
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, errNotReady):
		return &errspkg.ProvisioningError{Topic: name, Attempts: attempts, Err: errspkg.ErrTopicNotReady}
	default:
		return &errspkg.ProvisioningError{Topic: name, Attempts: attempts, Err: err}
	}
}

// topicReady treats unknown-topic and leader-election responses as not ready
// yet; every other admin error is returned.
func topicReady(admin ClusterAdmin, name string) (bool, error) {
	meta, err := admin.DescribeTopics([]string{name})
	if err != nil {
		if hasKError(err, sarama.ErrUnknownTopicOrPartition) {
			return false, nil
		}
		return false, fmt.Errorf("describe topic: %w", err)
	}
	for _, m := range meta {
		if m == nil || m.Name != name {
			continue
		}
		switch m.Err {
		case sarama.ErrNoError:
			return len(m.Partitions) > 0, nil
		case sarama.ErrUnknownTopicOrPartition, sarama.ErrLeaderNotAvailable:
			return false, nil
		default:
			return false, fmt.Errorf("describe topic: %w", m.Err)
		}
	}
	return false, nil
}

func (p *Provisioner) retryOptions(stage, topic string) []backoff.RetryOption {
	return []backoff.RetryOption{
		backoff.WithBackOff(backoff.NewConstantBackOff(p.cfg.Delay)),
		backoff.WithMaxTries(uint(p.cfg.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			p.logger.Info("Topic not ready, retrying", loggingpkg.LogFields{
				"stage": stage,
				"topic": topic,
				"retry": next.String(),
				"cause": err.Error(),
			})
		}),
	}
}

func hasKError(err error, code sarama.KError) bool {
	if errors.Is(err, code) {
		return true
	}
	var topicErr *sarama.TopicError
	if errors.As(err, &topicErr) && topicErr.Err == code {
		return true
	}
	return false
}
