// Package encoding provides the low-level length-prefixed binary helpers
// shared by the wire codec and chunk framing layers.
package encoding
