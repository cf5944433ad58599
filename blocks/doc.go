// Package blocks is the compiled-in block library: signal generators,
// arithmetic processors, spectrum analysis, and scope sinks. Each block type
// registers a factory with a block.Registry; factories decode their property
// maps with mapstructure and return fully constructed blocks.
//
// RegisterAll wires the whole library into a registry:
//
//	registry := block.NewRegistry()
//	if err := blocks.RegisterAll(registry); err != nil {
//		...
//	}
//	engine := graph.NewEngine(registry, logger, metrics)
package blocks
