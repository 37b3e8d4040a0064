// Package main is ipcctl, the command line client for the IPC debugger.
//
// Every command maps onto one API call and prints the response as JSON
// (or YAML with -o yaml). Reads are retried on transient failures;
// operations are sent once.
//
// Configuration:
//   - IPCDBG_URL, IPCDBG_TIMEOUT, IPCDBG_RETRY_MAX, IPCDBG_RETRY_WAIT_MIN,
//     IPCDBG_RETRY_WAIT_MAX, IPCDBG_RATE_LIMIT
//   - -url overrides IPCDBG_URL
//
// Usage:
//
//	ipcctl actor create producer
//	ipcctl resource create -kind queue -capacity 4
//	ipcctl op put r1 -actor a1 -data job -priority 2
//	ipcctl run deadlock_ring -param actors=3
//	ipcctl export -format yaml -compress zstd -out events.yaml.zst
//
// Exit codes: 0 on success, 1 when the server rejects a request, 2 on
// invalid arguments.
package main
