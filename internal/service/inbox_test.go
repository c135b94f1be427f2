package service

import (
	"context"
	"errors"
	"testing"

	"fedfollow/internal/activitypub"
	"fedfollow/internal/model"
)

func TestFollowService_ReceiveFollow_AutoAccept(t *testing.T) {
	// ARRANGE
	f := newFixture(t)
	ctx := context.Background()
	remote := model.RemoteActorRef{
		ActorURL: "https://remote.example/users/bob",
		InboxURL: "https://remote.example/users/bob/inbox",
	}

	// ACT
	follower, err := f.svc.ReceiveFollow(ctx, "tom", remote)

	// ASSERT
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !follower.Accepted || follower.UserID != f.tom.ID {
		t.Errorf("follower = %+v, want accepted row for tom", follower)
	}

	calls := f.gateway.Calls()
	if len(calls) != 1 || calls[0].Activity.Type != activitypub.TypeAccept {
		t.Fatalf("deliveries = %+v, want a single Accept", calls)
	}
	if calls[0].InboxURL != remote.InboxURL {
		t.Errorf("inbox = %q, want %q", calls[0].InboxURL, remote.InboxURL)
	}

	events := f.notifier.For(f.tom.ID)
	if len(events) != 1 || events[0].Event != model.EventNewFollower || events[0].Payload.FollowerID != follower.ID {
		t.Errorf("tom events = %+v, want NEW_FOLLOWER", events)
	}
}

func TestFollowService_ReceiveFollow_ManualReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	follower, err := f.svc.ReceiveFollow(ctx, "carol", model.RemoteActorRef{
		ActorURL: "https://remote.example/users/bob",
		InboxURL: "https://remote.example/users/bob/inbox",
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if follower.Accepted {
		t.Error("manual review must leave the request pending")
	}
	if calls := f.gateway.Calls(); len(calls) != 0 {
		t.Errorf("nothing should be sent before review, got %d deliveries", len(calls))
	}
	if events := f.notifier.For(f.carol.ID); len(events) != 1 || events[0].Event != model.EventFollowRequest {
		t.Errorf("carol events = %+v, want FOLLOW_REQUEST", events)
	}
}

func TestFollowService_ReceiveFollow_RepeatedIsSingleRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	remote := model.RemoteActorRef{
		ActorURL: "https://remote.example/users/bob",
		InboxURL: "https://remote.example/users/bob/inbox",
	}

	first, err := f.svc.ReceiveFollow(ctx, "carol", remote)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := f.svc.ReceiveFollow(ctx, "carol", remote)
	if err != nil {
		t.Fatalf("second: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("ids differ: %d vs %d", first.ID, second.ID)
	}
	pending, _ := f.store.ListPendingFollowers(ctx, f.carol.ID)
	if len(pending) != 1 {
		t.Errorf("pending = %d, want 1", len(pending))
	}
}

func TestFollowService_ReceiveFollow_Invalid(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name    string
		handle  string
		remote  model.RemoteActorRef
		wantErr error
	}{
		{"missing actor url", "tom", model.RemoteActorRef{}, model.ErrInvalidActorURL},
		{"unknown local target", "ghost", model.RemoteActorRef{ActorURL: "https://remote.example/users/bob"}, model.ErrActorNotFound},
		{"remote target", "bob@remote.example", model.RemoteActorRef{ActorURL: "https://other.example/u/eve"}, model.ErrActorNotFound},
		{"self", "tom", model.RemoteActorRef{ActorURL: testBaseURL + "/users/tom"}, model.ErrCannotFollowSelf},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.ReceiveFollow(context.Background(), tt.handle, tt.remote)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestFollowService_ReceiveAccept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bobURL := "https://remote.example/users/bob"

	if _, err := f.svc.Follow(ctx, f.alice.ID, "bob@remote.example"); err != nil {
		t.Fatalf("follow: %v", err)
	}

	if err := f.svc.ReceiveAccept(ctx, f.alice.ID, bobURL); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if row := f.mustFollowing(t, f.alice.ID, bobURL); !row.Accepted {
		t.Error("Following should be accepted after the remote Accept")
	}
	events := f.notifier.For(f.alice.ID)
	if last := events[len(events)-1]; last.Event != model.EventFollowAccepted || !last.Payload.IsAccepted {
		t.Errorf("last event = %+v, want FOLLOW_ACCEPTED", last)
	}

	status, _ := f.svc.FollowStatus(ctx, &f.alice.ID, "bob@remote.example")
	if !status.IsFollowing || !status.IsAccepted {
		t.Errorf("status = %+v, want following and accepted", status)
	}
}

func TestFollowService_ReceiveAccept_Unsolicited(t *testing.T) {
	f := newFixture(t)

	err := f.svc.ReceiveAccept(context.Background(), f.alice.ID, "https://remote.example/users/bob")

	if !errors.Is(err, model.ErrNotFollowing) {
		t.Errorf("error = %v, want %v", err, model.ErrNotFollowing)
	}
}

func TestFollowService_ReceiveReject_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bobURL := "https://remote.example/users/bob"

	if _, err := f.svc.Follow(ctx, f.alice.ID, "bob@remote.example"); err != nil {
		t.Fatalf("follow: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := f.svc.ReceiveReject(ctx, f.alice.ID, bobURL); err != nil {
			t.Fatalf("reject #%d: %v", i+1, err)
		}
	}

	f.assertNoFollowing(t, f.alice.ID, bobURL)
	rejected := 0
	for _, e := range f.notifier.For(f.alice.ID) {
		if e.Event == model.EventFollowRejected {
			rejected++
		}
	}
	if rejected != 1 {
		t.Errorf("FOLLOW_REJECTED sent %d times, want 1", rejected)
	}
}

func TestFollowService_ReceiveUndoFollow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bobURL := "https://remote.example/users/bob"

	if _, err := f.svc.ReceiveFollow(ctx, "tom", model.RemoteActorRef{ActorURL: bobURL, InboxURL: bobURL + "/inbox"}); err != nil {
		t.Fatalf("receive follow: %v", err)
	}

	if err := f.svc.ReceiveUndoFollow(ctx, "tom", bobURL); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.svc.ReceiveUndoFollow(ctx, "tom", bobURL); err != nil {
		t.Fatalf("second undo should be a no-op, got %v", err)
	}

	if row := f.store.FollowerByActor(f.tom.ID, bobURL); row != nil {
		t.Errorf("follower should be gone, got %+v", row)
	}
}
