/*
Package runtime hosts the long-running parts of the relay.

A Service owns one Watermill router and the transport built for one consumer
group. The Dispatcher, the MetricsConsumer and the Bridge each sit on their
own Service, so they never share offsets or connections. Every consumer walks
the same lifecycle:

	disconnected -> provisioning -> subscribed -> consuming -> stopped_graceful | stopped_fatal

Handlers never return errors. A message that cannot be decoded, stored or
forwarded is logged, counted and acknowledged; the next one is processed.

The Producer publishes onto the same brokers and reports the outcome as a
Receipt rather than an error. App wires everything from a config.Config.
*/
package runtime
