package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/meeple/internal/adapters/mq/queue"
	worker "github.com/okian/meeple/internal/adapters/mq/worker"
	"github.com/okian/meeple/internal/domain/dedupe"
	"github.com/okian/meeple/internal/domain/model"
	"github.com/okian/meeple/internal/lifecycle"
	"github.com/smartystreets/goconvey/convey"
)

type call struct {
	tier   model.Tier
	maxAge time.Duration
}

type mockRetrainer struct {
	mu    sync.Mutex
	calls []call
	fail  map[model.Tier]error
}

func (m *mockRetrainer) RetrainIfStale(_ context.Context, t model.Tier, maxAge time.Duration) (lifecycle.RetrainResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call{tier: t, maxAge: maxAge})
	if err := m.fail[t]; err != nil {
		return lifecycle.RetrainResult{Tier: t, Tag: t.Tag()}, err
	}
	return lifecycle.RetrainResult{Retrained: true, Tier: t, Tag: t.Tag(), CorpusSize: 42}, nil
}

type outcome struct {
	job queue.Job
	res lifecycle.RetrainResult
	err error
}

func observer(ch chan<- outcome) worker.Option {
	return worker.WithObserver(func(j queue.Job, res lifecycle.RetrainResult, err error) {
		ch <- outcome{job: j, res: res, err: err}
	})
}

func next(ch <-chan outcome) (outcome, bool) {
	select {
	case o := <-ch:
		return o, true
	case <-time.After(2 * time.Second):
		return outcome{}, false
	}
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker reading from a queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(4))
		retrainer := &mockRetrainer{fail: map[model.Tier]error{}}
		pending := dedupe.NewSlots(dedupe.NewInMemoryDeduper())
		results := make(chan outcome, 4)

		w := worker.NewInMemoryWorker(q, retrainer,
			worker.WithName("test-worker"),
			worker.WithReleaser(pending),
			observer(results),
		)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When a retrain job is queued", func() {
			j := queue.Job{ID: "job-1", Tier: model.TierReduced, MaxAge: time.Hour, EnqueuedAt: time.Now()}
			convey.So(pending.Claim(ctx, j.Key(), j.MaxAge), convey.ShouldBeFalse)
			convey.So(q.Enqueue(ctx, j), convey.ShouldBeNil)

			convey.Convey("Then the retrainer runs it and the pending slot is released", func() {
				o, ok := next(results)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(o.err, convey.ShouldBeNil)
				convey.So(o.res.Retrained, convey.ShouldBeTrue)
				convey.So(o.job.ID, convey.ShouldEqual, "job-1")
				convey.So(pending.Size(), convey.ShouldEqual, 0)

				retrainer.mu.Lock()
				defer retrainer.mu.Unlock()
				convey.So(retrainer.calls, convey.ShouldResemble, []call{{tier: model.TierReduced, maxAge: time.Hour}})
			})
		})

		convey.Convey("When a forced request is coalesced behind a queued job", func() {
			j := queue.Job{ID: "job-4", Tier: model.TierRich, MaxAge: 24 * time.Hour}
			convey.So(pending.Claim(ctx, j.Key(), j.MaxAge), convey.ShouldBeFalse)
			convey.So(pending.Claim(ctx, j.Key(), 0), convey.ShouldBeTrue)
			convey.So(q.Enqueue(ctx, j), convey.ShouldBeNil)

			convey.Convey("Then the queued job runs with the forced bound", func() {
				o, ok := next(results)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(o.job.ID, convey.ShouldEqual, "job-4")

				retrainer.mu.Lock()
				defer retrainer.mu.Unlock()
				convey.So(retrainer.calls, convey.ShouldResemble, []call{{tier: model.TierRich, maxAge: 0}})
			})
		})

		convey.Convey("When training fails", func() {
			retrainer.fail[model.TierRich] = model.ErrTrainingFailed
			convey.So(q.Enqueue(ctx, queue.Job{ID: "job-2", Tier: model.TierRich}), convey.ShouldBeNil)

			convey.Convey("Then the failure is reported and the worker keeps running", func() {
				o, ok := next(results)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(errors.Is(o.err, model.ErrTrainingFailed), convey.ShouldBeTrue)

				convey.So(q.Enqueue(ctx, queue.Job{ID: "job-3", Tier: model.TierReduced}), convey.ShouldBeNil)
				o, ok = next(results)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(o.err, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the worker is shut down", func() {
			err := w.Shutdown(context.Background())

			convey.Convey("Then it stops cleanly and a second shutdown is harmless", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(w.Shutdown(context.Background()), convey.ShouldBeNil)
			})
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool of three workers", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(16))
		retrainer := &mockRetrainer{fail: map[model.Tier]error{}}
		results := make(chan outcome, 16)
		pool := worker.NewPool(3, q, retrainer, observer(results))
		convey.So(pool.Size(), convey.ShouldEqual, 3)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)

		convey.Convey("When several jobs are queued", func() {
			for _, id := range []string{"a", "b", "c", "d", "e"} {
				convey.So(q.Enqueue(ctx, queue.Job{ID: id, Tier: model.TierReduced}), convey.ShouldBeNil)
			}

			convey.Convey("Then every job runs exactly once", func() {
				seen := map[string]bool{}
				for i := 0; i < 5; i++ {
					o, ok := next(results)
					convey.So(ok, convey.ShouldBeTrue)
					seen[o.job.ID] = true
				}
				convey.So(seen, convey.ShouldHaveLength, 5)

				convey.Convey("And shutdown closes the queue", func() {
					convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
					convey.So(q.IsClosed(), convey.ShouldBeTrue)
				})
			})
		})

		convey.Convey("When a non-positive size is requested", func() {
			convey.So(worker.NewPool(0, q, retrainer).Size(), convey.ShouldEqual, 1)
		})
	})
}
