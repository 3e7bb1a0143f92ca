package scroll

// guard is the single in-flight token of a Machine. It is only touched with
// the Machine mutex held.
//
// The generation advances on invalidate so that a fetch started before a
// reset cannot write its result. The token itself stays held until that
// fetch returns, so two fetches never overlap.
type guard struct {
	held bool
	gen  uint64
}

// acquire takes the token. The returned generation identifies the holder.
func (g *guard) acquire() (uint64, bool) {
	if g.held {
		return 0, false
	}
	g.held = true
	return g.gen, true
}

// release frees the token and reports whether gen is still current, that is
// whether the holder may write its result.
func (g *guard) release(gen uint64) bool {
	g.held = false
	return gen == g.gen
}

func (g *guard) busy() bool {
	return g.held
}

// invalidate marks the current holder stale without freeing the token.
func (g *guard) invalidate() {
	g.gen++
}
