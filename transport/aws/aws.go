// Package aws provides an SNS/SQS transport. Topics are SNS topics; every
// consumer group subscribes its own SQS queue named <topic>-<group>, so
// groups receive messages independently.
package aws

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-aws/sns"
	"github.com/ThreeDotsLabs/watermill-aws/sqs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	amazonsns "github.com/aws/aws-sdk-go-v2/service/sns"
	amazonsqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	smithyendpoints "github.com/aws/smithy-go/endpoints"

	"github.com/drblury/eventrelay/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "aws"

const (
	localstackAccountID = "000000000000"
	awsAccountIDLength  = 12
	// SQS queue names are limited to 80 characters.
	maxQueueNameLength = 80
)

// DefaultConfigLoader allows overriding the AWS config loader for testing.
var DefaultConfigLoader = awsconfig.LoadDefaultConfig

// TopicResolverFactory allows overriding the topic resolver creation for testing.
var TopicResolverFactory = sns.NewGenerateArnTopicResolver

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg sns.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return sns.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg sns.SubscriberConfig, sqsCfg sqs.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return sns.NewSubscriber(cfg, sqsCfg, logger)
}

func init() {
	Register()
}

// Register registers the AWS transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.AWSCapabilities)
}

// settings are the resolved AWS values shared by publisher and subscriber.
type settings struct {
	aws       aws.Config
	accountID string
	region    string
	endpoint  *url.URL
}

// Build creates an SNS/SQS transport for cfg's consumer group.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	s, err := resolveSettings(ctx, cfg, logger)
	if err != nil {
		return transport.Transport{}, err
	}
	logger.Info("Created AWS config", watermill.LogFields{
		"region":          s.region,
		"account_id":      s.accountID,
		"custom_endpoint": s.endpoint != nil,
	})

	topicResolver, err := TopicResolverFactory(s.accountID, s.region)
	if err != nil {
		logger.Error("Failed to create SNS topic resolver", err, watermill.LogFields{
			"account_id": s.accountID,
			"region":     s.region,
		})
		return transport.Transport{}, err
	}
	snsOpts, sqsOpts := s.endpointOptions()

	publisher, err := PublisherFactory(sns.PublisherConfig{
		TopicResolver: topicResolver,
		AWSConfig:     s.aws,
		OptFns:        snsOpts,
		Marshaler:     sns.DefaultMarshalerUnmarshaler{},
	}, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	subscriber, err := SubscriberFactory(
		sns.SubscriberConfig{
			AWSConfig:            s.aws,
			OptFns:               snsOpts,
			TopicResolver:        topicResolver,
			GenerateSqsQueueName: QueueNameGenerator(cfg.GetConsumerGroup()),
		},
		sqs.SubscriberConfig{
			AWSConfig: s.aws,
			OptFns:    sqsOpts,
		},
		logger,
	)
	if err != nil {
		_ = publisher.Close()
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher:  publisher,
		Subscriber: subscriber,
	}, nil
}

func resolveSettings(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (settings, error) {
	endpoint, err := endpointURL(cfg.GetAWSEndpoint())
	if err != nil {
		return settings{}, err
	}

	var opts []func(*awsconfig.LoadOptions) error
	if region := cfg.GetAWSRegion(); region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if key, secret := cfg.GetAWSAccessKeyID(), cfg.GetAWSSecretAccessKey(); key != "" && secret != "" {
		logger.Info("Using static AWS credentials from config", nil)
		opts = append(opts, awsconfig.WithCredentialsProvider(staticCredentials(key, secret)))
	}
	if endpoint != nil {
		opts = append(opts, awsconfig.WithBaseEndpoint(endpoint.String()))
	}

	awsCfg, err := DefaultConfigLoader(ctx, opts...)
	if err != nil {
		logger.Error("Failed to load AWS default config", err, watermill.LogFields{"requested_region": cfg.GetAWSRegion()})
		return settings{}, err
	}
	// the loader may ignore the option when the environment sets a region
	if region := cfg.GetAWSRegion(); region != "" {
		awsCfg.Region = region
	}

	return settings{
		aws:       awsCfg,
		accountID: resolveAccountID(cfg.GetAWSAccountID(), endpoint != nil, logger),
		region:    awsCfg.Region,
		endpoint:  endpoint,
	}, nil
}

// resolveAccountID falls back to the LocalStack account when a custom
// endpoint is configured and the account id is missing or malformed.
func resolveAccountID(raw string, customEndpoint bool, logger watermill.LoggerAdapter) string {
	accountID := strings.Trim(raw, "\"' ")
	if !customEndpoint {
		return accountID
	}
	if accountID == "" || len(accountID) != awsAccountIDLength {
		logger.Info("Using LocalStack default AWS account ID", watermill.LogFields{"configured": accountID})
		return localstackAccountID
	}
	return accountID
}

func (s settings) endpointOptions() ([]func(*amazonsns.Options), []func(*amazonsqs.Options)) {
	if s.endpoint == nil {
		return nil, nil
	}
	endpoint := smithyendpoints.Endpoint{URI: *s.endpoint}
	return []func(*amazonsns.Options){
			amazonsns.WithEndpointResolverV2(sns.OverrideEndpointResolver{Endpoint: endpoint}),
		}, []func(*amazonsqs.Options){
			amazonsqs.WithEndpointResolverV2(sqs.OverrideEndpointResolver{Endpoint: endpoint}),
		}
}

// QueueNameGenerator names the SQS queue of a consumer group after the SNS
// topic and the group.
func QueueNameGenerator(group string) sns.GenerateSqsQueueNameFn {
	return func(ctx context.Context, snsTopic sns.TopicArn) (string, error) {
		topic, err := sns.ExtractTopicNameFromTopicArn(snsTopic)
		if err != nil {
			return "", err
		}
		name := string(topic)
		if group != "" {
			name += "-" + group
		}
		if len(name) > maxQueueNameLength {
			return "", fmt.Errorf("sqs queue name %q exceeds %d characters", name, maxQueueNameLength)
		}
		return name, nil
	}
}

func endpointURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse AWS endpoint: %w", err)
	}
	return parsed, nil
}

func staticCredentials(accessKeyID, secretAccessKey string) aws.CredentialsProvider {
	return aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     accessKeyID,
			SecretAccessKey: secretAccessKey,
		}, nil
	})
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.AWSCapabilities
}
