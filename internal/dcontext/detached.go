package dcontext

import "context"

// DetachedContext returns a context that won't be canceled when the parent
// context is canceled. deckapi.SaveDeck is the one caller: once a manifest
// has committed, best-effort thumbnail generation runs on a context
// detached from the HTTP request that triggered the save, so a client that
// disconnects right after PUT /decks/{id} responds can't abort a render
// and thumbnail write that the manifest write already promised (§4.6,
// "thumbnail failures are logged but not fatal" — they still have to get a
// chance to run).
//
// The detached context preserves all values from the parent context (the
// request logger attached by httpapi, in particular) but removes
// cancellation/deadline behavior.
//
// Example usage:
//
//	detached := dcontext.DetachedContext(ctx)
//	data, _, err := renderer.Render(detached, manifest, slide)
//	if err != nil {
//		GetLogger(ctx).Errorf("thumbnail render failed for %s: %v", manifest.Meta.ID, err)
//	}
func DetachedContext(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
