// Package marstek implements the authenticated client for the Marstek Cloud
// API (home battery/inverter telemetry).
//
// The client performs two HTTP exchanges: a login that trades MD5-hashed
// credentials for an opaque session token, and a device-list fetch presented
// with that token. Token lifecycle is handled transparently:
//
//	absent -> (acquire) -> valid -> (server reports invalid) ->
//	refreshed within the same call -> (code 8 permission denial) -> absent
//
// A token-invalid response triggers exactly one refresh-and-retry per call;
// a code-8 response clears the token and fails the call without retry.
//
// Every failure leaving this package is classified as one of three kinds
// (ErrInvalidCredentials, ErrPermissionDenied, ErrTransient), checked with
// errors.Is. No raw transport or parsing error crosses the package boundary.
//
// One Client serves one account. Clients are not safe for concurrent use;
// the poller serialises scheduled and manual refreshes so only one cycle
// ever drives a given client.
package marstek
