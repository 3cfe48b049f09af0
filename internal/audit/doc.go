// Package audit defines the audit event model, pluggable sinks, and the
// asynchronous dispatcher used by the credential engine.
package audit
