// Package protocol encodes KV requests and responses as frames of aligned
// little-endian fields, built with package buffer.
package protocol
