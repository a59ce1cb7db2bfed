package prom

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// UnknownSLOError marks an SLO name that maps to no known query class.
// Callers treat it as "no chart for this alert", not as a failure.
type UnknownSLOError struct {
	SLO string
}

func (e *UnknownSLOError) Error() string {
	return fmt.Sprintf("unrecognized SLO: %s", e.SLO)
}

// InvalidPercentileError marks a latency SLO whose percentile suffix does not
// parse.
type InvalidPercentileError struct {
	Percentile string
}

func (e *InvalidPercentileError) Error() string {
	return fmt.Sprintf("invalid percentile: %s", e.Percentile)
}

// Should be calculated from build_info, but for now a fixed interval works.
const buildInfoInterval = "5s"

// queryForSLO builds the PromQL for an SLO's trend chart. SLO names encode
// their class and percentile, e.g. "success-rate-99" or "latency-99.9".
func queryForSLO(slo, objectiveName string, tr TimeRange) (string, error) {
	interval := windowFromRange(tr)

	if percentile, ok := strings.CutPrefix(slo, "success-rate-"); ok {
		return fmt.Sprintf(`
(
    sum by(function, module, version, commit, service_name) (
        rate(
            {
                __name__=~"function_calls(_count)?(_total)?",
                result="ok",
                objective_name="%[1]s",
                objective_percentile="%[2]s"
            }[%[3]s]
        )
        * on (instance, job) group_left(version, commit) (
            last_over_time(build_info[%[4]s])
            or on (instance, job) up
        )
    )
) / (
    sum by(function, module, version, commit, service_name) (
        rate(
            {
                __name__=~"function_calls(_count)?(_total)?",
                objective_name="%[1]s",
                objective_percentile="%[2]s"
            }[%[3]s]
        )
        * on (instance, job) group_left(version, commit) (
            last_over_time(build_info[%[4]s])
            or on (instance, job) up
        )
    ) > 0
)`, objectiveName, percentile, interval, buildInfoInterval), nil
	}

	if percentile, ok := strings.CutPrefix(slo, "latency-"); ok {
		promqlPercentile, err := promqlPercentile(percentile)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(`
label_replace(
    histogram_quantile(
        %[1]s,
        sum by (le, function, module, commit, version, service_name) (
            rate({
                __name__=~"function_calls_duration(_seconds)?_bucket",
                objective_name="%[2]s",
                objective_percentile="%[3]s"
            }[%[4]s])
            * on (instance, job) group_left(version, commit) (
                last_over_time(build_info[%[5]s])
                or on (instance, job) up
            )
        )
    ),
    "percentile_latency", "%[3]s", "", ""
)`, promqlPercentile, objectiveName, percentile, interval, buildInfoInterval), nil
	}

	return "", &UnknownSLOError{SLO: slo}
}

// windowFromRange returns the full range as a PromQL duration, so the rate
// window covers the whole chart.
func windowFromRange(tr TimeRange) string {
	return fmt.Sprintf("%ds", int64(tr.To.Sub(tr.From).Seconds()))
}

// promqlPercentile translates an objective percentile ("99.9") into the 0..1
// quantile PromQL expects ("0.999").
func promqlPercentile(percentile string) (string, error) {
	p, err := strconv.ParseFloat(percentile, 64)
	if err != nil {
		return "", &InvalidPercentileError{Percentile: percentile}
	}
	return strings.TrimRight(fmt.Sprintf("%.3f", p/100.0), "0"), nil
}

// stepForRange keeps roughly 120 steps across the range, rounded up to a full
// second, so short ranges stay fine-grained without flooding long ones.
func stepForRange(tr TimeRange) string {
	step := math.Ceil(tr.To.Sub(tr.From).Seconds() / 120.0)
	if step < 1 {
		step = 1
	}
	return fmt.Sprintf("%ds", int64(step))
}
