package engine

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/p4th0r/sitefence/internal/addrs"
	"github.com/p4th0r/sitefence/internal/privileged"
	"github.com/p4th0r/sitefence/internal/resolver"
)

type trackingResolver struct{}

func (trackingResolver) Resolve(_ context.Context, domains []string) *resolver.Result {
	tr := resolver.NewTracker()
	tr.RecordResolution(domains[0], "system", false, []net.IP{net.ParseIP("93.184.216.34")}, nil)
	tr.RecordResolution(domains[0], "doh", true, nil, errors.New("timeout"))
	return &resolver.Result{Addresses: addrs.Set{IPv4: []string{"93.184.216.34"}}, Tracker: tr}
}

func TestBuildReport(t *testing.T) {
	f := newFixture(t, addrs.Set{})
	f.engine.Resolver = trackingResolver{}

	start := time.Unix(1_700_000_000, 0)
	res, err := f.engine.Apply(context.Background(), []string{"example.com"})
	if err != nil {
		t.Fatal(err)
	}
	report := f.engine.BuildReport([]string{"example.com"}, res, nil, start, start.Add(2*time.Second))

	if report.Cycle.Result != ResultApplied {
		t.Errorf("Result = %q, want %q", report.Cycle.Result, ResultApplied)
	}
	if report.Cycle.DurationSecs != 2 {
		t.Errorf("DurationSecs = %v, want 2", report.Cycle.DurationSecs)
	}
	if report.Cycle.Backend != "nft" || report.Cycle.Transport != "direct" {
		t.Errorf("Backend/Transport = %q/%q", report.Cycle.Backend, report.Cycle.Transport)
	}
	if len(report.Resolutions) != 2 {
		t.Fatalf("got %d resolutions, want 2", len(report.Resolutions))
	}
	if diff := cmp.Diff([]string{"93.184.216.34"}, report.Resolutions[0].Addresses); diff != "" {
		t.Errorf("resolution addresses mismatch (-want +got):\n%s", diff)
	}
	if report.Summary.ChannelFailures != 1 {
		t.Errorf("ChannelFailures = %d, want 1", report.Summary.ChannelFailures)
	}
	if report.Summary.NewlyBlocked != 1 {
		t.Errorf("NewlyBlocked = %d, want 1", report.Summary.NewlyBlocked)
	}
	if diff := cmp.Diff([]string{"93.184.216.34"}, report.Blocked.IPv4); diff != "" {
		t.Errorf("blocked mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildReportError(t *testing.T) {
	f := newFixture(t, addrs.Set{})
	err := &ApplyError{Kind: KindPrivileged, Err: privileged.ErrAuthorizationCanceled}
	now := time.Now()

	report := f.engine.BuildReport([]string{"example.com"}, nil, err, now, now)
	if report.Cycle.Result != ResultCanceled {
		t.Errorf("Result = %q, want %q", report.Cycle.Result, ResultCanceled)
	}
	if report.Cycle.Error == "" {
		t.Error("Error not recorded")
	}
	if diff := cmp.Diff([]string{"example.com"}, report.Cycle.Domains); diff != "" {
		t.Errorf("domains mismatch (-want +got):\n%s", diff)
	}
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		name string
		res  *Result
		err  error
		want string
	}{
		{"applied", &Result{Applied: true}, nil, ResultApplied},
		{"unchanged", &Result{}, nil, ResultUnchanged},
		{"dry run", &Result{Script: "'true'"}, nil, ResultDryRun},
		{"canceled", nil, &ApplyError{Kind: KindPrivileged, Err: privileged.ErrAuthorizationCanceled}, ResultCanceled},
		{"failed", nil, &ApplyError{Kind: KindVerify, Err: errSectionMissing}, ResultFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Outcome(tt.res, tt.err); got != tt.want {
				t.Errorf("Outcome = %q, want %q", got, tt.want)
			}
		})
	}
}
