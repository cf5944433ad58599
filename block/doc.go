// Package block defines the processing unit model of the workbench engine:
// typed directional ports, the concrete Block type with its observable
// properties and lifecycle state, the Strategy computation contract, and the
// factory registry that maps string type identifiers to block constructors.
//
// A Block is deliberately a single concrete type. Per-type behaviour lives in
// a Strategy implementation (one required method, OnInputReceived) plus
// optional FormatWatcher, PropertyWatcher, and Runnable extensions. New block
// types register a strategy and a port/property Schema with the Registry;
// the graph engine never needs to know about individual block types.
package block
