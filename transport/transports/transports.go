// Package transports imports all built-in transports for registration.
package transports

import (
	_ "github.com/drblury/eventrelay/transport/aws"
	_ "github.com/drblury/eventrelay/transport/channel"
	_ "github.com/drblury/eventrelay/transport/kafka"
	_ "github.com/drblury/eventrelay/transport/nats"
	_ "github.com/drblury/eventrelay/transport/rabbitmq"
)
