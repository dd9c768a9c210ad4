package ledger

import (
	"testing"

	"github.com/alanyoungcy/parimarket/internal/domain"
)

func TestDecodeOperation(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Operation
		wantErr bool
	}{
		{
			name: "create market",
			in:   `{"op":"create_market","question":"Will it rain?","end_time":1700000000}`,
			want: CreateMarket{Question: "Will it rain?", EndTime: 1700000000},
		},
		{
			name: "place bet with string amount",
			in:   `{"op":"place_bet","market_id":3,"is_yes":true,"amount":"100"}`,
			want: PlaceBet{MarketID: 3, IsYes: true, Amount: domain.NewAmount(100)},
		},
		{
			name: "place bet with numeric amount",
			in:   `{"op":"place_bet","market_id":3,"amount":250}`,
			want: PlaceBet{MarketID: 3, Amount: domain.NewAmount(250)},
		},
		{
			name: "resolve market",
			in:   `{"op":"resolve_market","market_id":2,"outcome":false}`,
			want: ResolveMarket{MarketID: 2},
		},
		{
			name: "claim winnings",
			in:   `{"op":"claim_winnings","market_id":9}`,
			want: ClaimWinnings{MarketID: 9},
		},
		{name: "unknown op", in: `{"op":"withdraw"}`, wantErr: true},
		{name: "missing op", in: `{"market_id":1}`, wantErr: true},
		{name: "bad amount", in: `{"op":"place_bet","market_id":1,"amount":"-3"}`, wantErr: true},
		{name: "not json", in: `place_bet`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeOperation([]byte(tt.in))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("DecodeOperation(%s) = %#v, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeOperation(%s): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("DecodeOperation(%s) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}
