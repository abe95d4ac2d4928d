/*
Package scheduler runs the background jobs on cron schedules:

	daily-verse        0 6 * * *   generate and pin the verse of the day
	retention-cleanup  0 2 * * 0   weekly backup-then-delete cycle
	metrics-rollup     0 0 * * *   aggregate yesterday's usage counters

Jobs are registered by name, bounded by a run timeout, and a failing run
never stops the schedule.
*/
package scheduler
