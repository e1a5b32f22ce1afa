package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options on a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then the defaults should apply", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "trendhunter")
				So(manager.subsystem, ShouldEqual, "engine")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the metrics should carry the namespace and labels", func() {
				manager.sourcesTotal.Set(3)
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				found := false
				for _, f := range families {
					if f.GetName() == "test_unit_sources_total" {
						found = true
						So(f.GetMetric()[0].GetLabel()[0].GetName(), ShouldEqual, "env")
						So(f.GetMetric()[0].GetGauge().GetValue(), ShouldEqual, 3)
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When empty option values are given", func() {
			manager := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithHistogramBuckets(nil),
				WithPrometheusRegistry(prometheus.NewRegistry()),
			)

			Convey("Then the defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "trendhunter")
				So(manager.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
			})
		})
	})
}

func TestDomainMetrics(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording ingestion metrics", func() {
			before := testutil.ToFloat64(globalManager.observationsIngested.WithLabelValues("reddit"))
			RecordObservationIngested("reddit")
			RecordObservationIngested("reddit")

			Convey("Then the platform counter should increase", func() {
				after := testutil.ToFloat64(globalManager.observationsIngested.WithLabelValues("reddit"))
				So(after-before, ShouldEqual, 2)
			})
		})

		Convey("When a platform is halted and resumed", func() {
			UpdatePlatformHalted("news", true)
			halted := testutil.ToFloat64(globalManager.platformHalted.WithLabelValues("news"))
			UpdatePlatformHalted("news", false)
			resumed := testutil.ToFloat64(globalManager.platformHalted.WithLabelValues("news"))

			Convey("Then the gauge should flip", func() {
				So(halted, ShouldEqual, 1)
				So(resumed, ShouldEqual, 0)
			})
		})

		Convey("When updating trust and watermark gauges", func() {
			UpdateTrustScore("twitter:alice", 0.8)
			UpdateWatermark("twitter:alice", 4)

			Convey("Then the per-source gauges should hold the values", func() {
				So(testutil.ToFloat64(globalManager.trustScore.WithLabelValues("twitter:alice")), ShouldEqual, 0.8)
				So(testutil.ToFloat64(globalManager.sourceWatermark.WithLabelValues("twitter:alice")), ShouldEqual, 4)
			})
		})

		Convey("When recording transitions and intents", func() {
			before := testutil.ToFloat64(globalManager.transitions.WithLabelValues("FLAT", "INVESTED"))
			RecordTransition("FLAT", "INVESTED")
			RecordIntent("invest", "accepted")
			UpdateOpenPositions(1)

			Convey("Then the decision metrics should reflect them", func() {
				So(testutil.ToFloat64(globalManager.transitions.WithLabelValues("FLAT", "INVESTED"))-before, ShouldEqual, 1)
				So(testutil.ToFloat64(globalManager.openPositions), ShouldEqual, 1)
			})
		})

		Convey("When recording the remaining helpers", func() {
			So(func() {
				RecordObservationDropped("no_token")
				RecordIngestionFailure("twitter", "transient")
				RecordIngestionCycle(12)
				RecordVerification("correct")
				RecordOracleLatency(3)
				RecordVerificationPass(1)
				UpdateSourcesTotal(5)
				RecordBoardUpdateLatency(0.1)
				RecordBoardQueryLatency(0.1)
				RecordBoardSnapshot(2, 1700000000)
				UpdateQueueSize(3)
				UpdateQueueCapacity(10)
				UpdateQueueUtilization(0.3)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
				RecordQueueProcessingLatency(4)
				UpdateWorkerCount(2)
				UpdateWorkerActiveCount(1)
				RecordWorkerProcessingLatency(5)
				RecordWorkerError()
				RecordHTTPRequest("/stats", "GET", "200")
				RecordHTTPRequestDuration("/stats", "GET", "200", 1)
				RecordErrorByComponent("verify", "oracle")
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(10)
				RecordSystemGCPauseTime(0.5)
			}, ShouldNotPanic)
		})

		Convey("When reading the registry", func() {
			Convey("Then it should be the custom one", func() {
				So(GetRegistry(), ShouldEqual, customRegistry)
			})
		})
	})
}
