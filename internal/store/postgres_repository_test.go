package store

import (
	"testing"
	"time"

	"github.com/resgateprime/donation-service/internal/domain"
)

func TestDonationListFilter(t *testing.T) {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 31, 23, 59, 59, 0, time.UTC)

	tests := []struct {
		name      string
		opts      domain.DonationListOptions
		wantWhere string
		wantArgs  int
	}{
		{
			name:      "no filters",
			opts:      domain.DonationListOptions{},
			wantWhere: "",
			wantArgs:  0,
		},
		{
			name:      "status only",
			opts:      domain.DonationListOptions{Status: domain.DonationProcessed},
			wantWhere: " WHERE status = $1",
			wantArgs:  1,
		},
		{
			name:      "date range only",
			opts:      domain.DonationListOptions{StartDate: &start, EndDate: &end},
			wantWhere: " WHERE received_at >= $1 AND received_at <= $2",
			wantArgs:  2,
		},
		{
			name:      "all filters keep placeholder order",
			opts:      domain.DonationListOptions{Status: domain.DonationFailed, StartDate: &start, EndDate: &end},
			wantWhere: " WHERE status = $1 AND received_at >= $2 AND received_at <= $3",
			wantArgs:  3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args := donationListFilter(tt.opts)
			if where != tt.wantWhere {
				t.Fatalf("expected where %q, got %q", tt.wantWhere, where)
			}
			if len(args) != tt.wantArgs {
				t.Fatalf("expected %d args, got %d", tt.wantArgs, len(args))
			}
		})
	}
}

func TestStatusStrings(t *testing.T) {
	got := statusStrings([]domain.OrderStatus{domain.OrderPlaced, domain.OrderPartial})
	if len(got) != 2 || got[0] != "PLACED" || got[1] != "PARTIAL" {
		t.Fatalf("unexpected conversion result %v", got)
	}
}
