package types

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
)

func TestParseClipDuration(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    ClipDuration
		wantErr bool
	}{
		{in: "auto", want: AutoDuration()},
		{in: "", want: AutoDuration()},
		{in: "30", want: FixedDuration(30)},
		{in: "45s", want: FixedDuration(45)},
		{in: "4", wantErr: true},
		{in: "121", wantErr: true},
		{in: "long", wantErr: true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseClipDuration(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}

func TestClipDuration_JSON(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(GenerationRequest{Duration: FixedDuration(30)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got GenerationRequest
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Duration.Seconds != 30 {
		t.Fatalf("duration lost in %s", b)
	}
}

func TestGenerationRequest_Validate(t *testing.T) {
	t.Parallel()

	valid := GenerationRequest{
		Source:      Source{Kind: SourceURL, URL: "https://youtu.be/dQw4w9WgXcQ"},
		ClipCount:   3,
		Duration:    AutoDuration(),
		AspectRatio: Ratio9x16,
		Template:    "podcast",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}

	cases := []struct {
		name string
		mut  func(r *GenerationRequest)
	}{
		{name: "zero clips", mut: func(r *GenerationRequest) { r.ClipCount = 0 }},
		{name: "too many clips", mut: func(r *GenerationRequest) { r.ClipCount = 11 }},
		{name: "bad ratio", mut: func(r *GenerationRequest) { r.AspectRatio = "2:1" }},
		{name: "bad template", mut: func(r *GenerationRequest) { r.Template = "vaporwave" }},
		{name: "bad duration", mut: func(r *GenerationRequest) { r.Duration = FixedDuration(200) }},
		{name: "empty url", mut: func(r *GenerationRequest) { r.Source.URL = " " }},
		{name: "unknown kind", mut: func(r *GenerationRequest) { r.Source.Kind = "ftp" }},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r := valid
			tc.mut(&r)
			if err := r.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestFormatClock(t *testing.T) {
	t.Parallel()

	cases := map[float64]string{0: "0:00", 9.4: "0:09", 59.6: "1:00", 75: "1:15", 3600: "60:00", -3: "0:00"}
	for in, want := range cases {
		if got := FormatClock(in); got != want {
			t.Fatalf("FormatClock(%v)=%q want %q", in, got, want)
		}
	}
}

func TestCategoryOf(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("stage: %w", NewError(CategoryRender, "render clip", fmt.Errorf("no space left on device")))
	if got := CategoryOf(wrapped); got != CategoryRender {
		t.Fatalf("got %q", got)
	}
	if got := CategoryOf(fmt.Errorf("x: %w", context.DeadlineExceeded)); got != CategoryTimeout {
		t.Fatalf("got %q", got)
	}
	if got := CategoryOf(context.Canceled); got != CategoryCancelled {
		t.Fatalf("got %q", got)
	}
	if got := CategoryOf(fmt.Errorf("plain")); got != CategoryInternal {
		t.Fatalf("got %q", got)
	}
	if CategoryMediaTooLong.Family() != CategoryTranscription || CategorySourceTooLarge.Family() != FamilySource {
		t.Fatalf("unexpected families")
	}
	if !IsPermanent(fmt.Errorf("wrap: %w", Permanent(fmt.Errorf("missing model")))) {
		t.Fatalf("permanent marker lost through wrapping")
	}
}

func TestAspectRatio_Canvas(t *testing.T) {
	t.Parallel()

	if c := Ratio4x5.Canvas(); c.W != 1080 || c.H != 1350 {
		t.Fatalf("4:5 canvas %+v", c)
	}
	if c := AspectRatio("weird").Canvas(); c.W != 1920 || c.H != 1080 {
		t.Fatalf("default canvas %+v", c)
	}
}
