package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/points/pkg/points"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestLogOperationCountsStatusAndAmount(test *testing.T) {
	test.Parallel()
	registry := prometheus.NewRegistry()
	metrics := New(registry)
	ledgerName, _ := points.NewLedgerName("vp")

	metrics.LogOperation(context.Background(), points.OperationLog{Operation: "add", Ledger: ledgerName, Amount: 10, Status: "ok"})
	metrics.LogOperation(context.Background(), points.OperationLog{Operation: "add", Ledger: ledgerName, Amount: 15})
	metrics.LogOperation(context.Background(), points.OperationLog{Operation: "spend", Ledger: ledgerName, Amount: 50, Status: "error", Error: errors.New("insufficient funds")})

	if got := testutil.ToFloat64(metrics.Operations.WithLabelValues("add", "vp", "ok")); got != 2 {
		test.Fatalf("expected 2 add operations, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.PointsMoved.WithLabelValues("add", "vp")); got != 25 {
		test.Fatalf("expected 25 points added, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.PointsMoved.WithLabelValues("spend", "vp")); got != 0 {
		test.Fatalf("failed spends must not count points, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.Operations.WithLabelValues("spend", "vp", "error")); got != 1 {
		test.Fatalf("expected 1 failed spend, got %v", got)
	}
}

func TestHostAndEventObservations(test *testing.T) {
	test.Parallel()
	registry := prometheus.NewRegistry()
	metrics := New(registry)

	metrics.ObserveHostRequest("DoAction", nil)
	metrics.ObserveHostRequest("DoAction", errors.New("closed"))
	metrics.SetHostConnected(true)
	metrics.ObserveEvent("redeem", true, 20*time.Millisecond)

	if got := testutil.ToFloat64(metrics.HostRequests.WithLabelValues("DoAction", "error")); got != 1 {
		test.Fatalf("expected 1 failed host request, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.HostConnection); got != 1 {
		test.Fatalf("expected connected gauge, got %v", got)
	}
	if count := testutil.CollectAndCount(metrics.EventDuration); count != 1 {
		test.Fatalf("expected one event series, got %d", count)
	}
}
