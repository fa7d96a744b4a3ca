// Package masat provides the command-line interface for the MASAT portal
// engine. It configures subcommands (serve, ingest, issues, diff,
// dashboard), parses flags, and executes the selected command.
//
// Typical usage from a main package:
//
//	package main
//	import "github.com/automatesecurity/masat/cmd/masat"
//	func main() { masat.Execute() }
package masat
