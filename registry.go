package main

// Participant is the wire identity of an announced connection.
type Participant struct {
	Username string `json:"username"`
	ID       string `json:"id"`
}

// registry maps live connection IDs to announced participants (the online
// set). Connections that have not yet announced a username have no entry
// and cannot be targeted by challenges.
type registry struct {
	online map[string]Participant
}

func newRegistry() *registry {
	return &registry{
		online: make(map[string]Participant),
	}
}

// announce records a participant for the given connection ID. Announcing
// twice replaces the previous entry rather than creating a duplicate.
func (r *registry) announce(id, username string) Participant {
	p := Participant{
		Username: username,
		ID:       id,
	}
	r.online[id] = p
	return p
}

func (r *registry) lookup(id string) (Participant, bool) {
	p, ok := r.online[id]
	return p, ok
}

// remove drops the entry for id, if any. Safe to call for connections that
// never announced or were already removed.
func (r *registry) remove(id string) (Participant, bool) {
	p, ok := r.online[id]
	if ok {
		delete(r.online, id)
	}
	return p, ok
}

func (r *registry) list() []Participant {
	out := make([]Participant, 0, len(r.online))
	for _, p := range r.online {
		out = append(out, p)
	}
	return out
}
