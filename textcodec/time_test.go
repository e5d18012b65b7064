package textcodec

import (
	"errors"
	"testing"
	"time"
)

func TestDecodeIMapTime(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{
			name:  "with zone",
			input: "17-Jul-1996 02:44:25 -0700",
			want:  time.Date(1996, time.July, 17, 2, 44, 25, 0, time.FixedZone("", -7*3600)),
		},
		{
			name:  "without zone",
			input: "01-Jan-2020 00:00:00",
			want:  time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "single digit day",
			input: "5-Nov-2019 12:30:00 +0100",
			want:  time.Date(2019, time.November, 5, 12, 30, 0, 0, time.FixedZone("", 3600)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeIMapTime(tt.input)
			if err != nil {
				t.Fatalf("DecodeIMapTime(%q): %v", tt.input, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("DecodeIMapTime(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}

	if _, err := DecodeIMapTime("not a date"); err == nil {
		t.Error("DecodeIMapTime accepted garbage")
	}
}

func TestEncodeIMapTime(t *testing.T) {
	in := time.Date(1996, time.July, 17, 2, 44, 25, 0, time.UTC)
	if got := EncodeIMapTime(in); got != "17-Jul-1996 02:44:25 +0000" {
		t.Errorf("EncodeIMapTime = %q", got)
	}
}

func TestEncodeIMapTimeSentinel(t *testing.T) {
	got, err := DecodeIMapTime(EncodeIMapTime(time.Time{}))
	if err != nil {
		t.Fatalf("re-decode: %v", err)
	}
	if time.Since(got) > time.Hour || time.Since(got) < -time.Hour {
		t.Errorf("zero sentinel did not encode as now: %v", got)
	}
}

func TestAscTimeRoundTrip(t *testing.T) {
	in := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

	text, err := EncodeAscTime(in)
	if err != nil {
		t.Fatalf("EncodeAscTime: %v", err)
	}
	if text != "Wed Jan  1 00:00:00 2020" {
		t.Errorf("EncodeAscTime = %q", text)
	}

	out, err := DecodeAscTime(text)
	if err != nil {
		t.Fatalf("DecodeAscTime: %v", err)
	}
	if !out.Equal(in) {
		t.Errorf("round trip = %v, want %v", out, in)
	}
}

func TestEncodeAscTimeRejectsUnknownZone(t *testing.T) {
	in := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.FixedZone("X", 3600))
	if _, err := EncodeAscTime(in); !errors.Is(err, ErrTimeZoneUnknown) {
		t.Fatalf("EncodeAscTime err = %v, want ErrTimeZoneUnknown", err)
	}
}

func TestEncodeAscTimeSentinels(t *testing.T) {
	for _, in := range []time.Time{{}, time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)} {
		text, err := EncodeAscTime(in)
		if err != nil {
			t.Fatalf("EncodeAscTime(%v): %v", in, err)
		}
		got, err := DecodeAscTime(text)
		if err != nil {
			t.Fatalf("DecodeAscTime(%q): %v", text, err)
		}
		if time.Since(got.In(time.UTC)) > 24*time.Hour {
			t.Errorf("sentinel %v did not encode as now: %q", in, text)
		}
	}
}
