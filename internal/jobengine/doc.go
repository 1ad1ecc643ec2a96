// Package jobengine runs the dashboard's automations as child processes.
//
// A Job represents one execution attempt of a named automation, with its
// own id, combined-output buffer, and lifecycle state. The Registry owns
// all Jobs and enforces that at most one Job per automation name is running
// at any instant. Job output and state changes fan out through a broadcast
// hub so any number of viewers, including ones that attach mid-run, can
// follow along without ever stalling the process's output pump.
package jobengine
