package outbox_test

import (
	"context"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/gaelstats/sideline/internal/capture/outbox"
	"github.com/gaelstats/sideline/internal/domain/model"
)

func entry(clientID string, minute int) outbox.Entry {
	return outbox.Entry{
		ClientEventID: clientID,
		MatchID:       "m1",
		Type:          model.ScoreOnePoint,
		Team:          model.TeamClub,
		ActorRef:      "#14",
		Minute:        minute,
	}
}

func TestOutboxJournal(t *testing.T) {
	Convey("Given a fresh outbox", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "outbox.db")
		box, err := outbox.New(path)
		So(err, ShouldBeNil)
		defer box.Close()

		Convey("When entries are enqueued", func() {
			So(box.Enqueue(ctx, entry("cev-1", 5)), ShouldBeNil)
			So(box.Enqueue(ctx, entry("cev-2", 9)), ShouldBeNil)

			Convey("Then they are pending in capture order", func() {
				pending, err := box.Pending(ctx)
				So(err, ShouldBeNil)
				So(pending, ShouldHaveLength, 2)
				So(pending[0].ClientEventID, ShouldEqual, "cev-1")
				So(pending[1].ClientEventID, ShouldEqual, "cev-2")
				So(pending[0].Status, ShouldEqual, outbox.StatusPending)
				So(pending[0].EnqueuedAt.IsZero(), ShouldBeFalse)

				n, err := box.PendingCount(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 2)
			})

			Convey("And enqueueing the same id again is refused", func() {
				So(box.Enqueue(ctx, entry("cev-1", 5)), ShouldWrap, outbox.ErrDuplicateEntry)
			})
		})

		Convey("When a payload is round-tripped", func() {
			e := entry("cev-1", 5)
			e.Type = model.KickoutWon
			angle := 37.5
			e.Payload = model.Payload{Outcome: model.KickoutOutcomeBreak, Angle: &angle}
			So(box.Enqueue(ctx, e), ShouldBeNil)

			pending, err := box.Pending(ctx)
			So(err, ShouldBeNil)

			Convey("Then structured fields survive storage", func() {
				So(pending[0].Payload.Outcome, ShouldEqual, model.KickoutOutcomeBreak)
				So(*pending[0].Payload.Angle, ShouldEqual, 37.5)
			})
		})
	})
}

func TestOutboxConfirmAndFail(t *testing.T) {
	Convey("Given an outbox with pending entries", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "outbox.db")
		box, err := outbox.New(path)
		So(err, ShouldBeNil)
		defer box.Close()

		So(box.Enqueue(ctx, entry("cev-1", 5)), ShouldBeNil)
		So(box.Enqueue(ctx, entry("cev-2", 9)), ShouldBeNil)

		Convey("When one is confirmed", func() {
			So(box.Confirm(ctx, "cev-1", 7), ShouldBeNil)

			Convey("Then it leaves the pending set", func() {
				pending, _ := box.Pending(ctx)
				So(pending, ShouldHaveLength, 1)
				So(pending[0].ClientEventID, ShouldEqual, "cev-2")
			})

			Convey("Then its server sequence is resolvable", func() {
				seq, err := box.SequenceFor(ctx, "cev-1")
				So(err, ShouldBeNil)
				So(seq, ShouldEqual, 7)

				_, err = box.SequenceFor(ctx, "cev-2")
				So(err, ShouldWrap, outbox.ErrNotConfirmed)
			})

			Convey("And confirming again is harmless", func() {
				So(box.Confirm(ctx, "cev-1", 7), ShouldBeNil)
				seq, _ := box.SequenceFor(ctx, "cev-1")
				So(seq, ShouldEqual, 7)
			})
		})

		Convey("When one is permanently rejected", func() {
			So(box.MarkFailed(ctx, "cev-1", "validation rejected"), ShouldBeNil)

			Convey("Then it moves to the failed set with its reason", func() {
				pending, _ := box.Pending(ctx)
				So(pending, ShouldHaveLength, 1)

				failed, err := box.Failed(ctx)
				So(err, ShouldBeNil)
				So(failed, ShouldHaveLength, 1)
				So(failed[0].ClientEventID, ShouldEqual, "cev-1")
				So(failed[0].LastError, ShouldEqual, "validation rejected")
			})
		})

		Convey("When a transient attempt is recorded", func() {
			So(box.RecordAttempt(ctx, "cev-1", "connection refused"), ShouldBeNil)
			So(box.RecordAttempt(ctx, "cev-1", "connection refused"), ShouldBeNil)

			Convey("Then the entry stays pending with a bumped counter", func() {
				pending, _ := box.Pending(ctx)
				So(pending[0].Attempts, ShouldEqual, 2)
				So(pending[0].LastError, ShouldEqual, "connection refused")
				So(pending[0].Status, ShouldEqual, outbox.StatusPending)
			})
		})
	})
}

func TestOutboxDurability(t *testing.T) {
	Convey("Given an outbox that was closed mid-flight", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "outbox.db")

		box, err := outbox.New(path)
		So(err, ShouldBeNil)
		So(box.Enqueue(ctx, entry("cev-1", 5)), ShouldBeNil)
		So(box.Enqueue(ctx, entry("cev-2", 9)), ShouldBeNil)
		So(box.Confirm(ctx, "cev-1", 3), ShouldBeNil)
		So(box.Close(), ShouldBeNil)

		Convey("When it is reopened", func() {
			reopened, err := outbox.New(path)
			So(err, ShouldBeNil)
			defer reopened.Close()

			Convey("Then the journal and confirmations survive", func() {
				pending, err := reopened.Pending(ctx)
				So(err, ShouldBeNil)
				So(pending, ShouldHaveLength, 1)
				So(pending[0].ClientEventID, ShouldEqual, "cev-2")

				seq, err := reopened.SequenceFor(ctx, "cev-1")
				So(err, ShouldBeNil)
				So(seq, ShouldEqual, 3)
			})
		})
	})
}
