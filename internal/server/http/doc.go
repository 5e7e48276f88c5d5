// Package httpserver exposes the control plane: dataset discovery, egress
// and stream settings, job control, frame ingest, and the socket admin
// surface, all as JSON over HTTP.
//
// Every endpoint is synchronous with respect to observable state: once a
// call returns success, a subsequent list/get reflects the change.
package httpserver
