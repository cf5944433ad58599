// Package workbench provides the backend processing-graph engine for a
// signal-processing workbench: a directed graph of stateful blocks connected
// through typed ports, with deterministic synchronous propagation, dynamic
// reconfiguration, and an observable-property layer that decouples the
// backend from any presentation layer.
//
// # Architecture
//
// The engine is organised in layers, leaf first:
//
//	┌─────────────────────────────────────┐
//	│         Graph Engine                │  Topology mutation,
//	│  (add, remove, connect, propagate)  │  propagation, lifecycle
//	└─────────────────────────────────────┘
//	           ↓ owns
//	┌─────────────────────────────────────┐
//	│           Blocks                    │  Ports, properties,
//	│  (generator, gain, fft, scope, …)   │  computation strategies
//	└─────────────────────────────────────┘
//	           ↓ notify via
//	┌─────────────────────────────────────┐
//	│          Event Bus                  │  Property changes,
//	│   (typed publish/subscribe)         │  lifecycle, faults
//	└─────────────────────────────────────┘
//
// Data flows by pushing a value into a block's input port: the block's
// strategy executes synchronously, may emit on any of its output ports, and
// the engine delivers each emission depth-first along the connection table in
// connection-insertion order. Cycles are rejected at connect time, so every
// propagation terminates.
//
// Property changes flow independently through each block's notifier to any
// number of subscribed listeners; view-model layers consume that channel and
// never poll.
//
// # Packages
//
//   - errors: error taxonomy and classification shared by all packages
//   - bus: engine-owned typed publish/subscribe dispatcher
//   - media: stream format metadata carried alongside port data
//   - block: ports, blocks, properties, factory registry
//   - graph: the processing-graph engine and graph descriptions
//   - graphstore: YAML persistence for named graph descriptions
//   - blocks: the compiled-in block library
//   - metric: prometheus metrics registry
//
// New block types are compiled-in extension points: implement a
// block.Strategy, declare a schema, and register a factory with
// block.Registry. The engine never needs to change.
package workbench
