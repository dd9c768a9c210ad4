package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "0", want: "0"},
		{in: "400", want: "400"},
		{in: "340282366920938463463374607431768211455", want: "340282366920938463463374607431768211455"},
		{in: "340282366920938463463374607431768211456", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "", wantErr: true},
		{in: "12abc", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAmount) {
					t.Fatalf("ParseAmount(%q) error = %v, want ErrInvalidAmount", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAmount(%q) unexpected error: %v", tt.in, err)
			}
			if got.String() != tt.want {
				t.Errorf("ParseAmount(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestAmountAddOverflow(t *testing.T) {
	sum, err := NewAmount(100).Add(NewAmount(300))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if sum.String() != "400" {
		t.Errorf("100 + 300 = %s, want 400", sum)
	}

	if _, err := MaxAmount().Add(NewAmount(1)); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("max + 1 error = %v, want ErrInvalidAmount", err)
	}
	if got, err := MaxAmount().Add(ZeroAmount); err != nil || got.Cmp(MaxAmount()) != 0 {
		t.Errorf("max + 0 = %s, %v; want max", got, err)
	}
}

func TestAmountMulDiv(t *testing.T) {
	got, ok := NewAmount(100).MulDiv(NewAmount(400), NewAmount(100))
	if !ok || got.String() != "400" {
		t.Errorf("100*400/100 = %s (ok=%v), want 400", got, ok)
	}

	// Floors.
	got, ok = NewAmount(1).MulDiv(NewAmount(10), NewAmount(3))
	if !ok || got.String() != "3" {
		t.Errorf("1*10/3 = %s (ok=%v), want 3", got, ok)
	}

	// Intermediate product above 128 bits.
	got, ok = MaxAmount().MulDiv(MaxAmount(), MaxAmount())
	if !ok || got.Cmp(MaxAmount()) != 0 {
		t.Errorf("max*max/max = %s (ok=%v), want max", got, ok)
	}

	if _, ok := NewAmount(1).MulDiv(NewAmount(1), ZeroAmount); ok {
		t.Error("division by zero reported ok")
	}
}

func TestAmountJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		A Amount `json:"a"`
	}{A: MustParseAmount("18446744073709551616")})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"a":"18446744073709551616"}` {
		t.Errorf("marshal = %s", data)
	}

	for _, in := range []string{`"250"`, `250`} {
		var a Amount
		if err := json.Unmarshal([]byte(in), &a); err != nil {
			t.Fatalf("unmarshal %s: %v", in, err)
		}
		if a.String() != "250" {
			t.Errorf("unmarshal %s = %s, want 250", in, a)
		}
	}

	var a Amount
	if err := json.Unmarshal([]byte(`"-5"`), &a); err == nil {
		t.Error("expected error for negative amount")
	}
}
