// Package core contains the authenticated request coordinator: credential
// ownership, dispatch and response classification, and the single-flight
// access token renewal that replays calls rejected with 401.
//
// Transport and persistence backends live in sibling packages and are injected
// through Option values; core must not import them.
package core
