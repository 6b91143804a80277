// Package handler implements the HTTP API of an editing session.
//
// Every mutating endpoint builds a command and runs it through the session,
// so edits made over HTTP are undoable like any other. Selection is not a
// command and goes straight to the controller.
//
// # Response Format
//
// Success responses return JSON with status 200 or 201. Error responses
// return {error, details} with a status derived from the domain error type:
// 404 for missing nodes, pins and edges, 400 for invalid input and 409 for
// conflicts such as a duplicate id or a pin that still has edges.
//
// # Server-Sent Events
//
// Live notifications are served by the hub package; cmd/digraph mounts it
// at /events next to these routes.
package handler
