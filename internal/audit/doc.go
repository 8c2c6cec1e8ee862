// Package audit relays security events from the engine to a sink without
// putting the sink on the request path.
//
// # Components
//
//   - [Event] is the audit record.
//   - [Sink] consumers: [ChannelSink] for tests, [LoggerSink] for zerolog.
//   - [Dispatcher] is a buffered relay with drop-if-full or block-if-full
//     behaviour.
//
// # What this package must NOT do
//
//   - Decide which events to emit. That belongs to the engine.
//   - Import the root package or any sibling internal package.
package audit
