// Package unread derives per-user unread totals from message read-flags.
package unread
