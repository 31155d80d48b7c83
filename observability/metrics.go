package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Subsystem label values for scan metrics.
const (
	SubsystemOverlay = "overlay"
	SubsystemControl = "control"
)

var (
	OverlaysHidden = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "muteguard_overlays_hidden_total",
			Help: "Overlay elements hidden, by detection tier",
		},
		[]string{"tier"},
	)

	MuteDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "muteguard_mute_detected_total",
			Help: "Times the page was seen muting the microphone",
		},
	)

	UnmuteClicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "muteguard_unmute_clicks_total",
			Help: "Unmute clicks issued after the recheck confirmed the mute",
		},
	)

	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "muteguard_scans_total",
			Help: "Scans run, by subsystem",
		},
		[]string{"subsystem"},
	)

	ScanErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "muteguard_scan_errors_total",
			Help: "Scans that failed or panicked, by subsystem",
		},
		[]string{"subsystem"},
	)

	MutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "muteguard_mutations_total",
			Help: "DOM change records received, by operation",
		},
		[]string{"op"},
	)

	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "muteguard_sessions_active",
			Help: "Pages currently guarded",
		},
	)
)
