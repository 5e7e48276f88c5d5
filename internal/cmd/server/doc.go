// Package serverrun wires configuration, runtime, and the HTTP control
// plane for the serve command.
package serverrun
