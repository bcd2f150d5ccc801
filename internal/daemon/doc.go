// Package daemon runs forpostctl as a long-lived service: it audits edits made
// to the stream config behind forpostctl's back, restarts the stream on the
// configured interval when the systemd timer is not doing so, and serves
// read-only /metrics, /healthz, /status and /events endpoints.
package daemon
