package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithMetricPrefix("x_"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithTrainingBuckets([]float64{1, 60}),
				WithCandidateBuckets([]float64{10, 100}),
				WithMetricsEnabled(true),
				WithRefreshInterval(5*time.Second),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then names and labels follow the options", func() {
				So(manager.namespace, ShouldEqual, "test")
				So(manager.refreshInterval, ShouldEqual, 5*time.Second)
				So(manager.trainingBuckets, ShouldResemble, []float64{1, 60})
				So(manager.candidateBuckets, ShouldResemble, []float64{10, 100})
				manager.dataUnavailable.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				var found bool
				for _, f := range families {
					if f.GetName() == "test_unit_x_data_unavailable_total" {
						found = true
						So(f.GetMetric()[0].GetLabel()[0].GetValue(), ShouldEqual, "test")
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When options carry empty values", func() {
			manager := NewManager(WithNamespace(""), WithHistogramBuckets(nil), WithTrainingBuckets(nil), WithPrometheusRegistry(prometheus.NewRegistry()))

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "meeple")
				So(manager.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
				So(manager.trainingBuckets, ShouldResemble, prometheus.ExponentialBuckets(0.01, 4, 10))
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording scoring metrics", func() {
			before := testutil.ToFloat64(globalManager.scoreRequests.WithLabelValues("rich-model"))
			RecordScoreRequest("rich-model")
			RecordFallThrough("reduced-model", "model_unavailable")
			RecordScoringLatency(12)
			RecordDataUnavailable()
			RecordRecommendation(40)
			UpdateCatalogGames(12000)

			Convey("Then the counters move", func() {
				So(testutil.ToFloat64(globalManager.scoreRequests.WithLabelValues("rich-model")), ShouldEqual, before+1)
				So(testutil.ToFloat64(globalManager.catalogGames), ShouldEqual, 12000)
			})
		})

		Convey("When recording lifecycle metrics", func() {
			RecordTraining("rich-model", true, 2*time.Second)
			RecordTraining("rich-model", false, time.Second)
			UpdateModel("rich-model", 12000, 9000, time.Unix(1700000000, 0))
			RecordArtifactOperation("rich-model", "save", nil)
			RecordArtifactOperation("rich-model", "load", errors.New("boom"))
			RecordFeatureStoreQuery("profile", 3)
			UpdateBreakerState("feature-store", 2)

			Convey("Then model gauges hold the published values", func() {
				So(testutil.ToFloat64(globalManager.modelCorpusSize.WithLabelValues("rich-model")), ShouldEqual, 12000)
				So(testutil.ToFloat64(globalManager.modelTrainedUnix.WithLabelValues("rich-model")), ShouldEqual, 1700000000)
				So(testutil.ToFloat64(globalManager.breakerState.WithLabelValues("feature-store")), ShouldEqual, 2)
				So(testutil.ToFloat64(globalManager.artifactOps.WithLabelValues("rich-model", "load", "failure")), ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		Convey("When recording queue and worker metrics", func() {
			UpdateQueueSize(3)
			UpdateQueueCapacity(16)
			RecordQueueEnqueue()
			RecordQueueDequeue()
			RecordQueueEnqueueError()
			RecordQueueCoalesced()
			UpdateWorkerActiveCount(2)
			RecordWorkerProcessingLatency(40)
			RecordWorkerError()

			Convey("Then gauges hold the last value", func() {
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 3)
				So(testutil.ToFloat64(globalManager.workerActive), ShouldEqual, 2)
			})
		})

		Convey("When recording HTTP, error and system metrics", func() {
			RecordHTTPRequest("/healthz", "GET", "200")
			RecordHTTPRequestDuration("/healthz", "GET", "200", 1.5)
			RecordErrorByComponent("api", "bad_request")
			CollectSystem()

			Convey("Then the registry exposes them", func() {
				families, err := GetRegistry().Gather()
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				joined := strings.Join(names, ",")
				So(joined, ShouldContainSubstring, "meeple_engine_http_requests_total")
				So(joined, ShouldContainSubstring, "meeple_engine_system_goroutines")
			})
		})
	})
}

func TestMetricsConcurrency(t *testing.T) {
	Convey("Given concurrent recorders", t, func() {
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					RecordScoreRequest("content-similarity")
					RecordFallThrough("rich-model", "below_threshold")
					UpdateQueueSize(j)
				}
			}()
		}
		wg.Wait()
		So(testutil.ToFloat64(globalManager.fallThroughs.WithLabelValues("rich-model", "below_threshold")), ShouldBeGreaterThanOrEqualTo, 800)
	})

	Convey("Given the system collector", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		StartSystemCollector(ctx)
		cancel()
		So(func() { CollectSystem() }, ShouldNotPanic)
	})
}
