package commands

import (
	"strings"
	"testing"

	"github.com/prometheus/common/expfmt"
)

const sampleMetrics = `
# HELP zenohd_session_frames_transmitted_total Total transport frames successfully written to the link.
# TYPE zenohd_session_frames_transmitted_total counter
zenohd_session_frames_transmitted_total{reliability="reliable"} 12
zenohd_session_frames_transmitted_total{reliability="best_effort"} 3
# HELP zenohd_session_fragments_emitted_total Total fragment frames written.
# TYPE zenohd_session_fragments_emitted_total counter
zenohd_session_fragments_emitted_total 2
# HELP zenohd_session_congestion_drops_total Total sends skipped under Drop.
# TYPE zenohd_session_congestion_drops_total counter
zenohd_session_congestion_drops_total 0
# HELP zenohd_session_subscribers Number of currently-registered subscribers.
# TYPE zenohd_session_subscribers gauge
zenohd_session_subscribers{locality="local"} 4
zenohd_session_subscribers{locality="remote"} 1
# HELP zenohd_session_queryables Number of currently-registered local queryables.
# TYPE zenohd_session_queryables gauge
zenohd_session_queryables 2
`

func TestLabeledAndScalarValue(t *testing.T) {
	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(strings.NewReader(sampleMetrics))
	if err != nil {
		t.Fatalf("parse sample metrics: %v", err)
	}

	reliable, err := labeledValue(families, "zenohd_session_frames_transmitted_total", "reliability", "reliable")
	if err != nil {
		t.Fatalf("labeledValue reliable: %v", err)
	}
	if reliable != 12 {
		t.Fatalf("reliable = %v, want 12", reliable)
	}

	remoteSubs, err := labeledValue(families, "zenohd_session_subscribers", "locality", "remote")
	if err != nil {
		t.Fatalf("labeledValue remote subscribers: %v", err)
	}
	if remoteSubs != 1 {
		t.Fatalf("remote subscribers = %v, want 1", remoteSubs)
	}

	queryables, err := scalarValue(families, "zenohd_session_queryables")
	if err != nil {
		t.Fatalf("scalarValue queryables: %v", err)
	}
	if queryables != 2 {
		t.Fatalf("queryables = %v, want 2", queryables)
	}

	if _, err := scalarValue(families, "zenohd_session_does_not_exist"); err == nil {
		t.Fatal("expected error for missing metric family")
	}

	if _, err := labeledValue(families, "zenohd_session_subscribers", "locality", "nowhere"); err == nil {
		t.Fatal("expected error for missing label value")
	}
}
