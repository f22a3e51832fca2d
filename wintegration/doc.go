// Package wintegration runs several witness nodes against each other
// over real HTTP, with a fake backing chain.
//
// It contains only tests.
package wintegration
