package main

// pairTable tracks which connections are committed to a pending or active
// session, and who each one is committed to. A connection is busy iff it
// has a partner link. Links are directional: a challenger awaiting a
// response is linked to its invitee while the invitee remains free, and an
// active session is a pair of links pointing at each other.
type pairTable struct {
	partners map[string]string
}

func newPairTable() *pairTable {
	return &pairTable{
		partners: make(map[string]string),
	}
}

func (t *pairTable) isBusy(id string) bool {
	_, ok := t.partners[id]
	return ok
}

func (t *pairTable) partnerOf(id string) (string, bool) {
	partner, ok := t.partners[id]
	return partner, ok
}

// markBusy links only id to partner, for challenges still awaiting a
// response.
func (t *pairTable) markBusy(id, partner string) {
	t.partners[id] = partner
}

// markBusyPair links both sides to each other. Re-linking an existing pair
// is a no-op, so accepting a challenge that already marked the challenger
// busy never creates duplicate state.
func (t *pairTable) markBusyPair(a, b string) {
	t.partners[a] = b
	t.partners[b] = a
}

func (t *pairTable) clear(id string) {
	delete(t.partners, id)
}

// clearPair unlinks both sides, but each side only if it is actually linked
// to the other. A stale opponent reference never frees a connection from an
// unrelated session.
func (t *pairTable) clearPair(a, b string) {
	if t.partners[a] == b {
		delete(t.partners, a)
	}
	if t.partners[b] == a {
		delete(t.partners, b)
	}
}

// linkedTo returns every connection whose link points at id, whether as an
// active partner or as a challenger still waiting on id.
func (t *pairTable) linkedTo(id string) []string {
	var out []string
	for from, to := range t.partners {
		if to == id {
			out = append(out, from)
		}
	}
	return out
}

func (t *pairTable) busyIDs() []string {
	out := make([]string, 0, len(t.partners))
	for id := range t.partners {
		out = append(out, id)
	}
	return out
}
