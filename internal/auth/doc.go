// Package auth guards the dtuhub front door.
//
// There is a single operator account configured in security.auth: its
// username and an Argon2id PHC hash of its password. A successful login
// yields a short-lived HS256 bearer token; requests then present it in the
// Authorization header and are checked by signature and expiry alone.
//
// Device commands themselves carry no authorisation; the token only decides
// who may reach the API.
package auth
