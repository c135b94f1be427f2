package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"fedfollow/internal/model"
)

type edgeKey struct {
	userID   int64
	actorURL string
}

// MemoryStore implements ActorRepository and RelationshipRepository in process memory.
// It is used when no database is configured and as the store behind service tests.
// A single mutex serializes every operation, so the paired local operations are atomic.
type MemoryStore struct {
	mu sync.Mutex

	actors    map[int64]*model.Actor
	nextActor int64

	following    map[edgeKey]*model.Following
	follower     map[edgeKey]*model.Follower
	followerByID map[int64]edgeKey
	nextRow      int64

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		actors:       make(map[int64]*model.Actor),
		following:    make(map[edgeKey]*model.Following),
		follower:     make(map[edgeKey]*model.Follower),
		followerByID: make(map[int64]edgeKey),
		now:          time.Now,
	}
}

// PutActor stores a copy of a, assigning an id when it has none, and returns the stored copy.
func (m *MemoryStore) PutActor(a model.Actor) *model.Actor {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a.ID == 0 {
		m.nextActor++
		a.ID = m.nextActor
	} else if a.ID > m.nextActor {
		m.nextActor = a.ID
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = m.now()
	}
	a.Policy = model.PolicyFromSetting(a.AutoAccept)
	m.actors[a.ID] = &a

	out := a
	return &out
}

func (m *MemoryStore) GetByHandle(ctx context.Context, username string, isRemote bool) (*model.Actor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.actors {
		if a.Username == username && a.IsRemote == isRemote {
			out := *a
			return &out, nil
		}
	}
	return nil, model.ErrActorNotFound
}

func (m *MemoryStore) GetByID(ctx context.Context, id int64) (*model.Actor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.actors[id]
	if !ok {
		return nil, model.ErrActorNotFound
	}
	out := *a
	return &out, nil
}

func (m *MemoryStore) GetFollowing(ctx context.Context, userID int64, actorURL string) (*model.Following, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.following[edgeKey{userID, actorURL}]
	if !ok {
		return nil, nil
	}
	out := *f
	return &out, nil
}

func (m *MemoryStore) CreateFollowing(ctx context.Context, f *model.Following) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createFollowingLocked(f)
}

func (m *MemoryStore) createFollowingLocked(f *model.Following) error {
	key := edgeKey{f.UserID, f.ActorURL}
	if _, exists := m.following[key]; exists {
		return model.ErrConflict
	}
	m.nextRow++
	f.ID = m.nextRow
	if f.CreatedAt.IsZero() {
		f.CreatedAt = m.now()
	}
	stored := *f
	m.following[key] = &stored
	return nil
}

func (m *MemoryStore) ReplaceFollowing(ctx context.Context, staleID int64, f *model.Following) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	staleKey, stale := m.pendingFollowingLocked(staleID)
	if existing, ok := m.following[edgeKey{f.UserID, f.ActorURL}]; ok && (!stale || existing.ID != staleID) {
		return model.ErrConflict
	}
	if stale {
		delete(m.following, staleKey)
	}
	return m.createFollowingLocked(f)
}

// pendingFollowingLocked finds an unaccepted Following row by id.
func (m *MemoryStore) pendingFollowingLocked(id int64) (edgeKey, bool) {
	if id == 0 {
		return edgeKey{}, false
	}
	for key, f := range m.following {
		if f.ID == id && !f.Accepted {
			return key, true
		}
	}
	return edgeKey{}, false
}

func (m *MemoryStore) SetFollowingAccepted(ctx context.Context, userID int64, actorURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.following[edgeKey{userID, actorURL}]
	if !ok {
		return model.ErrNotFollowing
	}
	f.Accepted = true
	return nil
}

func (m *MemoryStore) DeleteFollowing(ctx context.Context, userID int64, actorURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.following, edgeKey{userID, actorURL})
	return nil
}

func (m *MemoryStore) UpsertFollower(ctx context.Context, f *model.Follower) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.upsertFollowerLocked(f)
	return nil
}

func (m *MemoryStore) upsertFollowerLocked(f *model.Follower) {
	key := edgeKey{f.UserID, f.ActorURL}
	if existing, ok := m.follower[key]; ok {
		existing.Accepted = f.Accepted
		existing.InboxURL = f.InboxURL
		existing.SharedInboxURL = f.SharedInboxURL
		f.ID = existing.ID
		f.CreatedAt = existing.CreatedAt
		return
	}

	m.nextRow++
	f.ID = m.nextRow
	if f.CreatedAt.IsZero() {
		f.CreatedAt = m.now()
	}
	stored := *f
	m.follower[key] = &stored
	m.followerByID[f.ID] = key
}

func (m *MemoryStore) DeleteFollowerByActor(ctx context.Context, userID int64, actorURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deleteFollowerLocked(edgeKey{userID, actorURL})
	return nil
}

func (m *MemoryStore) deleteFollowerLocked(key edgeKey) {
	if f, ok := m.follower[key]; ok {
		delete(m.followerByID, f.ID)
		delete(m.follower, key)
	}
}

func (m *MemoryStore) ListPendingFollowers(ctx context.Context, userID int64) ([]model.Follower, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending := []model.Follower{}
	for key, f := range m.follower {
		if key.userID == userID && !f.Accepted {
			pending = append(pending, *f)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].ID > pending[j].ID
		}
		return pending[i].CreatedAt.After(pending[j].CreatedAt)
	})
	return pending, nil
}

func (m *MemoryStore) GetFollowerByID(ctx context.Context, id int64) (*model.Follower, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, ok := m.followerByID[id]
	if !ok {
		return nil, nil
	}
	out := *m.follower[key]
	return &out, nil
}

func (m *MemoryStore) MarkFollowerAccepted(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if key, ok := m.followerByID[id]; ok {
		m.follower[key].Accepted = true
	}
	return nil
}

func (m *MemoryStore) DeleteFollowerByID(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if key, ok := m.followerByID[id]; ok {
		m.deleteFollowerLocked(key)
	}
	return nil
}

func (m *MemoryStore) ApplyLocalFollow(ctx context.Context, staleID int64, following *model.Following, follower *model.Follower) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check first so a conflict leaves both sides untouched.
	staleKey, stale := m.pendingFollowingLocked(staleID)
	if existing, ok := m.following[edgeKey{following.UserID, following.ActorURL}]; ok && (!stale || existing.ID != staleID) {
		return model.ErrConflict
	}
	if stale {
		delete(m.following, staleKey)
	}
	m.upsertFollowerLocked(follower)
	return m.createFollowingLocked(following)
}

func (m *MemoryStore) RemoveLocalFollow(ctx context.Context, requesterID int64, targetURL string, targetID int64, requesterURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.following, edgeKey{requesterID, targetURL})
	m.deleteFollowerLocked(edgeKey{targetID, requesterURL})
	return nil
}

func (m *MemoryStore) AcceptLocalFollow(ctx context.Context, followerID int64, requesterID int64, targetURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if key, ok := m.followerByID[followerID]; ok {
		m.follower[key].Accepted = true
	}
	if f, ok := m.following[edgeKey{requesterID, targetURL}]; ok {
		f.Accepted = true
	}
	return nil
}

func (m *MemoryStore) RejectLocalFollow(ctx context.Context, followerID int64, requesterID int64, targetURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if key, ok := m.followerByID[followerID]; ok {
		m.deleteFollowerLocked(key)
	}
	delete(m.following, edgeKey{requesterID, targetURL})
	return nil
}

// CountFollowing returns the number of Following rows for userID.
func (m *MemoryStore) CountFollowing(userID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for key := range m.following {
		if key.userID == userID {
			n++
		}
	}
	return n
}

// FollowerByActor returns the Follower row for (userID, actorURL), or nil.
func (m *MemoryStore) FollowerByActor(userID int64, actorURL string) *model.Follower {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.follower[edgeKey{userID, actorURL}]
	if !ok {
		return nil
	}
	out := *f
	return &out
}

var (
	_ ActorRepository        = (*MemoryStore)(nil)
	_ RelationshipRepository = (*MemoryStore)(nil)
)
