// Package bus provides the in-process publish/subscribe mechanism that
// propagates messaging state changes to observers (chat windows,
// conversation lists, notification banners).
package bus
