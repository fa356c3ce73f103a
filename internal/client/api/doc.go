// Package api is the client's gateway to the poll HTTP API.
//
// Every call runs with a per-attempt timeout. Failures where no response
// arrived (dial/transport errors, attempt timeouts) are retried with
// exponential backoff up to a fixed number of attempts and then surface as
// *TransientError. Responses with a status >= 400 are never retried and
// surface as *StatusError. Both unwrap to the sentinels in internal/common.
package api
