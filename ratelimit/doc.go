// Package ratelimit implements a sliding-window abuse counter over Redis
// sorted sets. Windows are approximate but bounded: members outside the
// rolling interval are pruned before every decision, and key TTLs keep
// idle windows from accumulating.
//
//	Docs: docs/ratelimit.md
package ratelimit
