// Package driving defines the interfaces through which the application
// drives the core engine.
package driving
