package prom

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// TimeRange bounds a range query.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// Point is a single sample.
type Point struct {
	Time  time.Time
	Value float64
}

// Timeseries is one labeled series from a range query.
type Timeseries struct {
	Name   string
	Labels map[string]string
	Points []Point
}

// samplePair decodes Prometheus' [unix_seconds, "value"] tuple encoding.
type samplePair struct {
	Time  time.Time
	Value float64
}

func (p *samplePair) UnmarshalJSON(b []byte) error {
	var raw [2]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("sample pair: %w", err)
	}

	var ts float64
	if err := json.Unmarshal(raw[0], &ts); err != nil {
		return fmt.Errorf("sample timestamp: %w", err)
	}

	var s string
	if err := json.Unmarshal(raw[1], &s); err != nil {
		return fmt.Errorf("sample value: %w", err)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("sample value %q: %w", s, err)
	}

	p.Time = time.UnixMilli(int64(ts * 1000)).UTC()
	p.Value = v
	return nil
}

type rangeVector struct {
	Metric map[string]string `json:"metric"`
	Values []samplePair      `json:"values"`
}

func (rv rangeVector) toTimeseries() Timeseries {
	labels := make(map[string]string, len(rv.Metric))
	for k, v := range rv.Metric {
		labels[k] = v
	}
	name := labels["__name__"]
	delete(labels, "__name__")

	points := make([]Point, len(rv.Values))
	for i, s := range rv.Values {
		points[i] = Point{Time: s.Time, Value: s.Value}
	}

	return Timeseries{Name: name, Labels: labels, Points: points}
}
