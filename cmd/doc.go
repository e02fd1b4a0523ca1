// Package cmd implements the command-line interface for the qKV replicated
// key-value store. It provides a hierarchical command structure with operations
// for running a node and interacting with the cluster as a client.
//
// The package is organized into several subpackages:
//
//   - kv: Commands for key-value operations (get, put, del, info, perf)
//   - serve: Commands for starting and configuring a qKV node
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See qkv -help for a list of all commands.
package cmd
