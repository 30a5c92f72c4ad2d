package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordParseCountsResults(t *testing.T) {
	okBefore := testutil.ToFloat64(ParsesTotal.WithLabelValues("safetensors", "buffer", ResultOK))
	errBefore := testutil.ToFloat64(ParsesTotal.WithLabelValues("safetensors", "handle", ResultError))

	RecordParse("safetensors", "buffer", nil, 5*time.Millisecond)
	RecordParse("safetensors", "handle", errors.New("boom"), time.Millisecond)

	if got := testutil.ToFloat64(ParsesTotal.WithLabelValues("safetensors", "buffer", ResultOK)); got != okBefore+1 {
		t.Fatalf("ok counter: expected %v, got %v", okBefore+1, got)
	}
	if got := testutil.ToFloat64(ParsesTotal.WithLabelValues("safetensors", "handle", ResultError)); got != errBefore+1 {
		t.Fatalf("error counter: expected %v, got %v", errBefore+1, got)
	}
}

func TestRecordParseEmptyMode(t *testing.T) {
	before := testutil.ToFloat64(ParsesTotal.WithLabelValues("pytorch", "none", ResultOK))
	RecordParse("pytorch", "", nil, time.Millisecond)
	if got := testutil.ToFloat64(ParsesTotal.WithLabelValues("pytorch", "none", ResultOK)); got != before+1 {
		t.Fatalf("expected empty mode to be recorded as none, got %v", got)
	}
}

func TestRecordHeaderSkipped(t *testing.T) {
	before := testutil.ToFloat64(SkippedEntries)
	RecordHeader(1024, 3)
	RecordHeader(64, 0)
	if got := testutil.ToFloat64(SkippedEntries); got != before+3 {
		t.Fatalf("skipped entries: expected %v, got %v", before+3, got)
	}
}
