package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
)

// errMetricMissing is returned when a scrape response is well-formed but a
// counter or gauge this command expects to report is absent — e.g. the
// daemon was built from an older version exposing fewer series.
var errMetricMissing = errors.New("zenohctl: metric not present in scrape")

// sessionStatus is the subset of zenohd's session metrics this command
// reports, scraped from its Prometheus endpoint rather than read from
// process memory — zenohctl has no RPC channel into a running daemon.
type sessionStatus struct {
	FramesTransmittedReliable   float64 `json:"frames_transmitted_reliable"`
	FramesTransmittedBestEffort float64 `json:"frames_transmitted_best_effort"`
	FragmentsEmitted            float64 `json:"fragments_emitted"`
	CongestionDrops             float64 `json:"congestion_drops"`
	LocalSubscribers            float64 `json:"local_subscribers"`
	RemoteSubscribers           float64 `json:"remote_subscribers"`
	Queryables                  float64 `json:"queryables"`
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report session counters scraped from the daemon's metrics endpoint",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			st, err := fetchStatus(metricsAddr)
			if err != nil {
				return fmt.Errorf("fetch status: %w", err)
			}
			return printStatus(st, outputFormat)
		},
	}
}

// fetchStatus scrapes addr's /metrics endpoint and extracts the session
// counters and gauges zenohd's internal/metrics.Collector registers.
func fetchStatus(addr string) (sessionStatus, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + addr + "/metrics")
	if err != nil {
		return sessionStatus{}, fmt.Errorf("scrape %s: %w", addr, err)
	}
	defer resp.Body.Close()

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return sessionStatus{}, fmt.Errorf("parse metrics from %s: %w", addr, err)
	}

	reliable, err := labeledValue(families, "zenohd_session_frames_transmitted_total", "reliability", "reliable")
	if err != nil {
		return sessionStatus{}, err
	}
	bestEffort, err := labeledValue(families, "zenohd_session_frames_transmitted_total", "reliability", "best_effort")
	if err != nil {
		return sessionStatus{}, err
	}
	fragments, err := scalarValue(families, "zenohd_session_fragments_emitted_total")
	if err != nil {
		return sessionStatus{}, err
	}
	drops, err := scalarValue(families, "zenohd_session_congestion_drops_total")
	if err != nil {
		return sessionStatus{}, err
	}
	localSubs, err := labeledValue(families, "zenohd_session_subscribers", "locality", "local")
	if err != nil {
		return sessionStatus{}, err
	}
	remoteSubs, err := labeledValue(families, "zenohd_session_subscribers", "locality", "remote")
	if err != nil {
		return sessionStatus{}, err
	}
	queryables, err := scalarValue(families, "zenohd_session_queryables")
	if err != nil {
		return sessionStatus{}, err
	}

	return sessionStatus{
		FramesTransmittedReliable:   reliable,
		FramesTransmittedBestEffort: bestEffort,
		FragmentsEmitted:            fragments,
		CongestionDrops:             drops,
		LocalSubscribers:            localSubs,
		RemoteSubscribers:           remoteSubs,
		Queryables:                  queryables,
	}, nil
}

// scalarValue returns the value of an unlabeled counter or gauge family.
func scalarValue(families map[string]*dto.MetricFamily, name string) (float64, error) {
	fam, ok := families[name]
	if !ok || len(fam.GetMetric()) == 0 {
		return 0, fmt.Errorf("%w: %s", errMetricMissing, name)
	}
	return metricValue(fam.GetMetric()[0]), nil
}

// labeledValue returns the value of the metric in family name whose single
// label labelName matches labelValue.
func labeledValue(families map[string]*dto.MetricFamily, name, labelName, labelValue string) (float64, error) {
	fam, ok := families[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", errMetricMissing, name)
	}
	for _, m := range fam.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == labelName && lp.GetValue() == labelValue {
				return metricValue(m), nil
			}
		}
	}
	return 0, fmt.Errorf("%w: %s{%s=%q}", errMetricMissing, name, labelName, labelValue)
}

func metricValue(m *dto.Metric) float64 {
	switch {
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	default:
		return 0
	}
}

func printStatus(st sessionStatus, format string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	default:
		fmt.Printf("frames transmitted (reliable):     %.0f\n", st.FramesTransmittedReliable)
		fmt.Printf("frames transmitted (best effort):  %.0f\n", st.FramesTransmittedBestEffort)
		fmt.Printf("fragments emitted:                 %.0f\n", st.FragmentsEmitted)
		fmt.Printf("congestion drops:                  %.0f\n", st.CongestionDrops)
		fmt.Printf("subscribers (local):                %.0f\n", st.LocalSubscribers)
		fmt.Printf("subscribers (remote):               %.0f\n", st.RemoteSubscribers)
		fmt.Printf("queryables:                         %.0f\n", st.Queryables)
		return nil
	}
}
