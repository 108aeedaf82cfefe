package state_test

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/gaelstats/sideline/internal/domain/model"
	"github.com/gaelstats/sideline/internal/domain/state"
)

func ev(seq uint64, typ model.EventType, team model.Team) *model.Event {
	return &model.Event{
		ClientEventID: "cev",
		MatchID:       "match-1",
		Sequence:      seq,
		Type:          typ,
		Team:          team,
	}
}

func correction(seq, of uint64) *model.Event {
	e := ev(seq, model.Correction, model.TeamClub)
	e.CorrectionOf = of
	return e
}

func TestScoreLine(t *testing.T) {
	Convey("Given a GAA scoreline", t, func() {
		s := state.ScoreLine{Goals: 2, OnePointers: 6, TwoPointers: 1}

		Convey("Then points weigh goals three and arc scores two", func() {
			So(s.Points(), ShouldEqual, 2*3+1*2+6)
		})

		Convey("Then it renders in goals-points form", func() {
			So(s.Display(), ShouldEqual, "2-07")
			So(state.ScoreLine{}.Display(), ShouldEqual, "0-00")
		})
	})
}

func TestApply(t *testing.T) {
	Convey("Given an empty match state", t, func() {
		st := state.New("match-1")

		Convey("When scoring events are applied", func() {
			st, err := state.Apply(st, ev(1, model.ScoreGoal, model.TeamClub), nil)
			So(err, ShouldBeNil)
			st, err = state.Apply(st, ev(2, model.ScoreTwoPoint, model.TeamClub), nil)
			So(err, ShouldBeNil)
			st, err = state.Apply(st, ev(3, model.ScoreOnePoint, model.TeamOpposition), nil)
			So(err, ShouldBeNil)

			Convey("Then each team's totals accumulate independently", func() {
				So(st.Club.Score.Goals, ShouldEqual, 1)
				So(st.Club.Score.TwoPointers, ShouldEqual, 1)
				So(st.Club.Points, ShouldEqual, 5)
				So(st.Opposition.Points, ShouldEqual, 1)
				So(st.LastSequence, ShouldEqual, 3)
			})

			Convey("Then per-type counters track every event", func() {
				So(st.Club.Counts[model.ScoreGoal], ShouldEqual, 1)
				So(st.Club.Counts[model.ScoreTwoPoint], ShouldEqual, 1)
				So(st.Opposition.Counts[model.ScoreOnePoint], ShouldEqual, 1)
			})
		})

		Convey("When an event arrives out of order", func() {
			st, err := state.Apply(st, ev(1, model.ShotWide, model.TeamClub), nil)
			So(err, ShouldBeNil)
			_, err = state.Apply(st, ev(1, model.ShotWide, model.TeamClub), nil)

			Convey("Then it is rejected", func() {
				So(err, ShouldWrap, state.ErrOutOfOrder)
			})
		})

		Convey("When a correction undoes a score", func() {
			goal := ev(1, model.ScoreGoal, model.TeamClub)
			st, err := state.Apply(st, goal, nil)
			So(err, ShouldBeNil)
			st, err = state.Apply(st, ev(2, model.ScoreOnePoint, model.TeamClub), nil)
			So(err, ShouldBeNil)
			st, err = state.Apply(st, correction(3, 1), goal)
			So(err, ShouldBeNil)

			Convey("Then the goal is reversed and later events survive", func() {
				So(st.Club.Score.Goals, ShouldEqual, 0)
				So(st.Club.Points, ShouldEqual, 1)
				So(st.Club.Counts, ShouldNotContainKey, model.ScoreGoal)
				So(st.LastSequence, ShouldEqual, 3)
			})
		})

		Convey("When a substantive correction replaces a score", func() {
			// Recorded as a point, was actually a goal.
			point := ev(1, model.ScoreOnePoint, model.TeamClub)
			st, err := state.Apply(st, point, nil)
			So(err, ShouldBeNil)

			replacement := ev(2, model.ScoreGoal, model.TeamClub)
			replacement.CorrectionOf = 1
			st, err = state.Apply(st, replacement, point)
			So(err, ShouldBeNil)

			Convey("Then the old contribution is swapped for the new", func() {
				So(st.Club.Score.OnePointers, ShouldEqual, 0)
				So(st.Club.Score.Goals, ShouldEqual, 1)
				So(st.Club.Points, ShouldEqual, 3)
			})
		})

		Convey("When a correction has no resolvable target", func() {
			_, err := state.Apply(st, correction(1, 99), nil)

			Convey("Then it is rejected", func() {
				So(err, ShouldWrap, state.ErrUnknownCorrection)
			})
		})

		Convey("When a correction targets another correction", func() {
			goal := ev(1, model.ScoreGoal, model.TeamClub)
			st, err := state.Apply(st, goal, nil)
			So(err, ShouldBeNil)
			undo := correction(2, 1)
			st, err = state.Apply(st, undo, goal)
			So(err, ShouldBeNil)

			_, err = state.Apply(st, correction(3, 2), undo)

			Convey("Then it is rejected", func() {
				So(err, ShouldWrap, state.ErrCorrectionTarget)
			})
		})

		Convey("When Apply succeeds", func() {
			before := state.New("match-1")
			_, err := state.Apply(before, ev(1, model.ScoreGoal, model.TeamClub), nil)
			So(err, ShouldBeNil)

			Convey("Then the input state is untouched", func() {
				So(before.Club.Score.Goals, ShouldEqual, 0)
				So(before.LastSequence, ShouldEqual, 0)
			})
		})
	})
}

func TestReplay(t *testing.T) {
	Convey("Given an ordered event log", t, func() {
		goal := ev(1, model.ScoreGoal, model.TeamClub)
		log := []*model.Event{
			goal,
			ev(2, model.ScoreOnePoint, model.TeamOpposition),
			correction(3, 1),
			ev(4, model.ScoreTwoPoint, model.TeamClub),
		}

		Convey("When replayed from empty", func() {
			replayed, err := state.Replay("match-1", log)
			So(err, ShouldBeNil)

			Convey("Then it matches the incrementally built state", func() {
				st := state.New("match-1")
				st, _ = state.Apply(st, log[0], nil)
				st, _ = state.Apply(st, log[1], nil)
				st, _ = state.Apply(st, log[2], goal)
				st, _ = state.Apply(st, log[3], nil)

				So(replayed, ShouldResemble, st)
				So(replayed.Club.Points, ShouldEqual, 2)
				So(replayed.LastSequence, ShouldEqual, 4)
			})
		})

		Convey("When the log has a gap", func() {
			gapped := []*model.Event{log[0], log[3]}
			_, err := state.Replay("match-1", gapped)

			Convey("Then replay refuses it", func() {
				So(err, ShouldWrap, state.ErrOutOfOrder)
			})
		})
	})
}
