//go:build !linux

package governor

import "context"

// killOrphans is a no-op without /proc.
func (g *Governor) killOrphans(context.Context) int {
	return 0
}
