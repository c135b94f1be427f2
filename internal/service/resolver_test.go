package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"fedfollow/internal/model"
)

// =============================================================================
// MOCK REPOSITORY
// =============================================================================

type mockActorRepository struct {
	getByHandleFn func(ctx context.Context, username string, isRemote bool) (*model.Actor, error)
	getByIDFn     func(ctx context.Context, id int64) (*model.Actor, error)

	getByHandleCalls []handleCall
}

type handleCall struct {
	Username string
	IsRemote bool
}

func (m *mockActorRepository) GetByHandle(ctx context.Context, username string, isRemote bool) (*model.Actor, error) {
	m.getByHandleCalls = append(m.getByHandleCalls, handleCall{Username: username, IsRemote: isRemote})
	if m.getByHandleFn != nil {
		return m.getByHandleFn(ctx, username, isRemote)
	}
	return nil, model.ErrActorNotFound
}

func (m *mockActorRepository) GetByID(ctx context.Context, id int64) (*model.Actor, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, model.ErrActorNotFound
}

// =============================================================================
// RESOLVE TESTS
// =============================================================================

func TestActorResolver_Resolve_ClassifiesHandles(t *testing.T) {
	tests := []struct {
		name         string
		handle       string
		wantUsername string
		wantRemote   bool
	}{
		{"local", "alice", "alice", false},
		{"remote", "bob@remote.example", "bob@remote.example", true},
		{"remote with leading at", "@bob@remote.example", "bob@remote.example", true},
		{"single at is remote", "@alice", "@alice", true},
		{"surrounding whitespace", "  alice ", "alice", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// ARRANGE
			repo := &mockActorRepository{
				getByHandleFn: func(ctx context.Context, username string, isRemote bool) (*model.Actor, error) {
					return &model.Actor{ID: 1, Username: username, IsRemote: isRemote, ExternalActorURL: "https://remote.example/users/bob"}, nil
				},
			}
			r := NewActorResolver(repo, testBaseURL, 0, 0)

			// ACT
			actor, err := r.Resolve(context.Background(), tt.handle)

			// ASSERT
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(repo.getByHandleCalls) != 1 {
				t.Fatalf("GetByHandle called %d times", len(repo.getByHandleCalls))
			}
			call := repo.getByHandleCalls[0]
			if call.Username != tt.wantUsername || call.IsRemote != tt.wantRemote {
				t.Errorf("lookup = %+v, want (%s, remote=%t)", call, tt.wantUsername, tt.wantRemote)
			}
			if actor.IsRemote != tt.wantRemote {
				t.Errorf("IsRemote = %t", actor.IsRemote)
			}
		})
	}
}

func TestActorResolver_Resolve_LocalAndRemoteUsernamesDoNotCollide(t *testing.T) {
	// A remote record literally named "alice" must never shadow the local alice.
	repo := &mockActorRepository{
		getByHandleFn: func(ctx context.Context, username string, isRemote bool) (*model.Actor, error) {
			if username == "alice" && !isRemote {
				return &model.Actor{ID: 7, Username: "alice"}, nil
			}
			if username == "alice" && isRemote {
				return &model.Actor{ID: 99, Username: "alice", IsRemote: true}, nil
			}
			return nil, model.ErrActorNotFound
		},
	}
	r := NewActorResolver(repo, testBaseURL, 0, 0)

	actor, err := r.Resolve(context.Background(), "alice")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if actor.ID != 7 || actor.IsRemote {
		t.Errorf("resolved %+v, want local alice", actor)
	}
}

func TestActorResolver_Resolve_NotFound(t *testing.T) {
	r := NewActorResolver(&mockActorRepository{}, testBaseURL, 0, 0)

	for _, handle := range []string{"", "@", "ghost", "ghost@remote.example"} {
		_, err := r.Resolve(context.Background(), handle)
		if !errors.Is(err, model.ErrActorNotFound) {
			t.Errorf("Resolve(%q) error = %v, want %v", handle, err, model.ErrActorNotFound)
		}
	}
}

func TestActorResolver_Resolve_LocalInboxDerived(t *testing.T) {
	repo := &mockActorRepository{
		getByHandleFn: func(ctx context.Context, username string, isRemote bool) (*model.Actor, error) {
			return &model.Actor{ID: 1, Username: username}, nil
		},
	}
	r := NewActorResolver(repo, testBaseURL+"/", 0, 0)

	actor, err := r.Resolve(context.Background(), "alice")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if actor.InboxURL != "https://local.example/users/alice/inbox" {
		t.Errorf("InboxURL = %q", actor.InboxURL)
	}
	if actor.DeliveryInbox() != actor.InboxURL {
		t.Errorf("local actors should deliver to their personal inbox, got %q", actor.DeliveryInbox())
	}
}

func TestActorResolver_Resolve_CachesRemoteOnly(t *testing.T) {
	repo := &mockActorRepository{
		getByHandleFn: func(ctx context.Context, username string, isRemote bool) (*model.Actor, error) {
			return &model.Actor{ID: 1, Username: username, IsRemote: isRemote}, nil
		},
	}
	r := NewActorResolver(repo, testBaseURL, 8, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := r.Resolve(ctx, "bob@remote.example"); err != nil {
			t.Fatalf("resolve remote: %v", err)
		}
		if _, err := r.Resolve(ctx, "alice"); err != nil {
			t.Fatalf("resolve local: %v", err)
		}
	}

	remote, local := 0, 0
	for _, c := range repo.getByHandleCalls {
		if c.IsRemote {
			remote++
		} else {
			local++
		}
	}
	if remote != 1 {
		t.Errorf("remote lookups = %d, want 1 (cached)", remote)
	}
	if local != 3 {
		t.Errorf("local lookups = %d, want 3 (never cached)", local)
	}
}

// =============================================================================
// URL TESTS
// =============================================================================

func TestActorResolver_ActorURL(t *testing.T) {
	r := NewActorResolver(&mockActorRepository{}, testBaseURL, 0, 0)

	tests := []struct {
		name    string
		actor   *model.Actor
		want    string
		wantErr error
	}{
		{
			name:  "local is derived",
			actor: &model.Actor{Username: "alice"},
			want:  "https://local.example/users/alice",
		},
		{
			name:  "remote uses stored url",
			actor: &model.Actor{Username: "bob@remote.example", IsRemote: true, ExternalActorURL: "https://remote.example/users/bob"},
			want:  "https://remote.example/users/bob",
		},
		{
			name:    "remote without url",
			actor:   &model.Actor{Username: "bob@remote.example", IsRemote: true},
			wantErr: model.ErrInvalidActorURL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.ActorURL(tt.actor)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ActorURL = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestActorResolver_LocalUsername(t *testing.T) {
	r := NewActorResolver(&mockActorRepository{}, testBaseURL, 0, 0)

	tests := []struct {
		url    string
		want   string
		wantOK bool
	}{
		{"https://local.example/users/alice", "alice", true},
		{"https://local.example/users/alice/inbox", "", false},
		{"https://local.example/users/alice#follows/1", "", false},
		{"https://local.example/users/", "", false},
		{"https://remote.example/users/alice", "", false},
	}

	for _, tt := range tests {
		got, ok := r.LocalUsername(tt.url)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("LocalUsername(%q) = (%q, %t), want (%q, %t)", tt.url, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestActorResolver_IsLocalInbox(t *testing.T) {
	r := NewActorResolver(&mockActorRepository{}, testBaseURL, 0, 0)

	tests := []struct {
		inbox string
		want  bool
	}{
		{"https://local.example/inbox", true},
		{"https://local.example/users/alice/inbox", true},
		{"https://remote.example/users/bob/inbox", false},
		{"https://local.example.evil/users/alice/inbox", false},
	}

	for _, tt := range tests {
		if got := r.IsLocalInbox(tt.inbox); got != tt.want {
			t.Errorf("IsLocalInbox(%q) = %t, want %t", tt.inbox, got, tt.want)
		}
	}
}
