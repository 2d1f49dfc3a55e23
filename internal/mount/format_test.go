package mount

import "testing"

func fp(v float64) *float64 { return &v }

func TestFormatRA(t *testing.T) {
	tests := []struct {
		name string
		ra   *float64
		want string
	}{
		{name: "unset", ra: nil, want: "--:--:--"},
		{name: "zero", ra: fp(0), want: "00:00:00.00"},
		{name: "half hour", ra: fp(13.5), want: "13:30:00.00"},
		{name: "with seconds", ra: fp(10.755), want: "10:45:18.00"},
		{name: "single digit hour", ra: fp(1.5), want: "01:30:00.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatRA(tt.ra); got != tt.want {
				t.Errorf("FormatRA = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatDec(t *testing.T) {
	tests := []struct {
		name string
		dec  *float64
		want string
	}{
		{name: "unset", dec: nil, want: "--:--:--"},
		{name: "zero", dec: fp(0), want: "+00:00:00.00"},
		{name: "negative", dec: fp(-5.25), want: "-05:15:00.00"},
		{name: "positive", dec: fp(45.5), want: "+45:30:00.00"},
		{name: "with seconds", dec: fp(-0.755), want: "-00:45:18.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatDec(tt.dec); got != tt.want {
				t.Errorf("FormatDec = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatIsDeterministic(t *testing.T) {
	ra := fp(6.123456)
	first := FormatRA(ra)
	for i := 0; i < 10; i++ {
		if got := FormatRA(ra); got != first {
			t.Fatalf("FormatRA varied: %q then %q", first, got)
		}
	}
}
