package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/drblury/eventrelay"
)

type cliState struct {
	configPath string
	envFile    string

	cfg    *eventrelay.Config
	logger eventrelay.ServiceLogger
	app    *eventrelay.App
}

func newRootCommand() *cobra.Command {
	state := &cliState{}

	root := &cobra.Command{
		Use:           "eventrelay",
		Short:         "Smart-home event relay",
		Long:          "eventrelay provisions topics, relays events into the event log, exports sensor gauges and bridges legacy devices.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return state.load()
		},
	}
	root.PersistentFlags().StringVarP(&state.configPath, "config", "c", "", "YAML config file (environment variables override it)")
	root.PersistentFlags().StringVar(&state.envFile, "env-file", ".env", "dotenv file loaded before the config; missing files are ignored")

	root.AddCommand(
		newDispatchCommand(state),
		newMetricsCommand(state),
		newBridgeCommand(state),
		newProvisionCommand(state),
		newPublishCommand(state),
		newRunCommand(state),
	)
	return root
}

func (s *cliState) load() error {
	if s.envFile != "" {
		if err := godotenv.Overload(s.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", s.envFile, err)
		}
	}

	cfg, err := eventrelay.LoadConfig(s.configPath)
	if err != nil {
		return err
	}
	s.cfg = cfg
	s.logger = eventrelay.NewLogger(cfg.Logging, version)

	app, err := eventrelay.NewApp(cfg, s.logger)
	if err != nil {
		return err
	}
	s.app = app
	return nil
}

func newDispatchCommand(s *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch",
		Short: "Consume every topic and append each event to the event log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			sink, err := s.app.OpenEventLog(ctx)
			if err != nil {
				return err
			}
			defer closeSink(s.logger, sink)

			dispatcher, err := s.app.NewDispatcher(ctx, sink)
			if err != nil {
				return err
			}
			return dispatcher.Run(ctx)
		},
	}
}

func newMetricsCommand(s *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Export sensor readings as Prometheus gauges",
		RunE: func(cmd *cobra.Command, _ []string) error {
			consumer, err := s.app.NewMetricsConsumer(cmd.Context())
			if err != nil {
				return err
			}
			return consumer.Run(cmd.Context())
		},
	}
}

func newBridgeCommand(s *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "bridge",
		Short: "Register devices announced on the legacy topic",
		RunE: func(cmd *cobra.Command, _ []string) error {
			bridge, err := s.app.NewBridge(cmd.Context(), nil)
			if err != nil {
				return err
			}
			return bridge.Run(cmd.Context())
		},
	}
}

func newProvisionCommand(s *cliState) *cobra.Command {
	var topics []string
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create missing topics and wait until they have partitions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := eventrelay.ParseTopics(topics)
			if err != nil {
				return err
			}
			if err := s.app.Provision(cmd.Context(), parsed); err != nil {
				return err
			}
			if cmd.Context().Err() != nil {
				// interrupted; nothing to report
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "topics ready")
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&topics, "topics", nil, "topics to provision (default: all)")
	return cmd
}

func newPublishCommand(s *cliState) *cobra.Command {
	var partitionKey, correlationID string
	cmd := &cobra.Command{
		Use:   "publish <topic> <json>",
		Short: "Publish one JSON document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			producer, err := s.app.NewProducer(ctx)
			if err != nil {
				return err
			}
			defer func() {
				if err := producer.Close(); err != nil {
					s.logger.Warn("Closing producer failed", err, nil)
				}
			}()

			var opts []eventrelay.PublishOption
			if partitionKey != "" {
				opts = append(opts, eventrelay.WithPartitionKey(partitionKey))
			}
			if correlationID != "" {
				opts = append(opts, eventrelay.WithCorrelationID(correlationID))
			}

			receipt := producer.Publish(ctx, eventrelay.Topic(args[0]), []byte(args[1]), opts...)
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", receipt.Status, receipt.Topic, receipt.MessageID)
			if !receipt.OK() {
				return receipt.Err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&partitionKey, "partition-key", "", "partition key header")
	cmd.Flags().StringVar(&correlationID, "correlation-id", "", "correlation id header")
	return cmd
}

func newRunCommand(s *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the dispatcher, the metrics consumer and the bridge in one process",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.app.RunAll(cmd.Context(), nil)
		},
	}
}

func closeSink(logger eventrelay.ServiceLogger, sink eventrelay.EventSink) {
	if err := sink.Close(); err != nil {
		logger.Warn("Closing event log failed", err, nil)
	}
}
