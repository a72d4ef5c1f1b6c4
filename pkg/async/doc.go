// Package async provides safe goroutine helpers and the bounded queue used
// for fire-and-forget side effects such as audit recording.
package async
