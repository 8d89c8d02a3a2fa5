// Package eventrelay is the event backbone of a smart-home platform. It moves
// JSON documents between producers and consumers over a message broker and
// mirrors every event into an append-only log.
//
// Five topics are known: sensorData, autoCommand, uiCommand, legacyAddDevice
// and deleteDeviceNotification. The broker is chosen by Config (Kafka,
// RabbitMQ, AWS SNS/SQS, NATS or in-memory Go channels); Kafka topics are
// created up front by the topic provisioner, the other brokers create their
// destinations on demand.
//
// # Components
//
//   - Producer publishes events and reports a Receipt instead of an error.
//   - Dispatcher follows every topic and appends each event to the stream
//     named after its topic. autoCommand steps are parsed and logged,
//     uiCommand payloads are logged verbatim.
//   - MetricsConsumer turns sensorData readings into Prometheus gauges.
//   - Bridge registers devices announced on legacyAddDevice with the device
//     management API.
//
// Each consumer runs its own Watermill router on its own consumer group, so
// they progress independently. A message that cannot be decoded or stored is
// logged, counted and acknowledged; it is never redelivered.
//
// # Event log
//
// The durable log is EventStoreDB by default. PostgreSQL, SQLite and a
// JSON-lines file can be selected with eventlog.backend.
//
// App wires all of the above from one Config; cmd/eventrelay is the binary.
package eventrelay
