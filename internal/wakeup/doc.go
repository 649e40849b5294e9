// Package wakeup provides the one-shot, per-tab timer used by the traversal
// scheduler. A single goroutine keeps a min-heap of deadlines and sleeps until
// the earliest one, capped at maxSleepCap so wall-clock jumps (NTP steps,
// suspend/resume) are noticed within a minute.
//
// Deadlines live in memory only. Durability comes from the scheduler, which
// re-arms every running traversal from its persisted nextRunAt on boot.
package wakeup
