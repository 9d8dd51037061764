package voicelink

import (
	"sort"
	"sync"

	"github.com/park285/tessu-bridge/internal/wsfeed"
)

type ChangeKind int

const (
	ChangeNone ChangeKind = iota
	ChangeJoined
	ChangeLeft
	ChangeUpdated
	ChangeTalking
	ChangeConnected
)

// Change describes the effect of one event on the roster. For
// ChangeLeft, User holds the record as it was before removal.
type Change struct {
	Kind ChangeKind
	User User
}

// Roster mirrors the users currently on the voice server.
type Roster struct {
	mu    sync.RWMutex
	users map[int]User
	me    int
}

func NewRoster() *Roster {
	return &Roster{users: make(map[int]User), me: -1}
}

// Apply folds one event into the roster. Unknown or malformed events are
// ignored and reported as ChangeNone.
func (r *Roster) Apply(e wsfeed.Envelope) Change {
	switch e.Type {
	case EventConnected:
		var ev connectedEvent
		if e.Decode(&ev) != nil {
			return Change{}
		}
		ev.Me.IsMe = true
		r.Reset(ev.Me, ev.Clients)
		return Change{Kind: ChangeConnected, User: ev.Me}
	case EventClientJoined, EventClientUpdated:
		var u User
		if e.Decode(&u) != nil {
			return Change{}
		}
		kind := ChangeUpdated
		if e.Type == EventClientJoined {
			kind = ChangeJoined
		}
		return Change{Kind: kind, User: r.upsert(u)}
	case EventClientLeft:
		var ref clientRef
		if e.Decode(&ref) != nil {
			return Change{}
		}
		u, ok := r.remove(ref.ClientID)
		if !ok {
			return Change{}
		}
		return Change{Kind: ChangeLeft, User: u}
	case EventTalkStatus:
		var ts talkStatus
		if e.Decode(&ts) != nil {
			return Change{}
		}
		u, ok := r.setTalking(ts.ClientID, ts.Talking)
		if !ok {
			return Change{}
		}
		return Change{Kind: ChangeTalking, User: u}
	}
	return Change{}
}

// Reset replaces the whole roster, e.g. after a reconnect.
func (r *Roster) Reset(me User, users []User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = make(map[int]User, len(users)+1)
	for _, u := range users {
		r.users[u.ClientID] = u
	}
	me.IsMe = true
	r.users[me.ClientID] = me
	r.me = me.ClientID
}

func (r *Roster) upsert(u User) User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.users[u.ClientID]; ok {
		u.IsMe = prev.IsMe
	}
	if u.ClientID == r.me {
		u.IsMe = true
	}
	r.users[u.ClientID] = u
	return u
}

func (r *Roster) remove(id int) (User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if ok {
		delete(r.users, id)
	}
	return u, ok
}

func (r *Roster) setTalking(id int, talking bool) (User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return User{}, false
	}
	u.Talking = talking
	r.users[id] = u
	return u, true
}

func (r *Roster) Get(id int) (User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	return u, ok
}

func (r *Roster) Me() (User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[r.me]
	return u, ok
}

// Users returns a snapshot ordered by client id.
func (r *Roster) Users() []User {
	r.mu.RLock()
	out := make([]User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out
}

// Talking returns the users currently speaking, ordered by client id.
func (r *Roster) Talking() []User {
	var out []User
	for _, u := range r.Users() {
		if u.Talking {
			out = append(out, u)
		}
	}
	return out
}
