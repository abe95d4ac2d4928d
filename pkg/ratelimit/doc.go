/*
Package ratelimit implements per-identity fixed-window rate limiting.

Each identity (user:<id> or ip:<addr>) is owned by a single goroutine
actor with a message mailbox, so counter updates never race. Allow is an
atomic consume-if-available; Peek observes without consuming; Record
increments unconditionally. Windows are one hour, captcha is signalled at
80% of budget, and idle actors are reaped after two quiet windows.

Stop fails open: checks arriving after shutdown are allowed.
*/
package ratelimit
