// Package id provides small process-local identifier generators.
package id
