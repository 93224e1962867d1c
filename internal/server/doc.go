// Package server exposes the engine over HTTP: workflow storage and
// validation, run and webhook triggers, run history, debug sessions,
// schedules and a server-sent event stream.
package server
