// Package api exposes the sync engine over HTTP with gin.
//
// Sources are addressed by name under /api/sources and tasks by id under
// /api/tasks. Responses are JSON; failures carry {"error": "..."} with a
// status derived from the domain error.
package api
