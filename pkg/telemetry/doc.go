/*
Package telemetry tracks in-process usage counters per UTC date.

Tracker accumulates blob reads/writes, database traffic, generation
outcomes and unique users, raises deduplicated alerts when a quota passes
80%, and keeps a bounded buffer of recent rate-limit events. A daily
janitor discards counters for past dates after the rollup job has read
them.
*/
package telemetry
