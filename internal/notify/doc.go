// Package notify turns new-message events into transient, bounded
// notifications: a short preview per unseen message, at most five
// outstanding per recipient.
package notify
