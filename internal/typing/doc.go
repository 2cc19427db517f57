// Package typing tracks which participants are actively composing a
// message in each conversation.
package typing
