package reel

import (
	"reflect"
	"strings"
	"testing"
)

func segmentWith(tr Transition, dur float64, g Geometry) Segment {
	return Segment{ClipPath: "clip.mp4", ClipDuration: 10, Duration: dur, Transition: tr, Geometry: g}
}

func TestApply_FadeOnNativeFrame(t *testing.T) {
	rc := Apply(segmentWith(Fade, 2, FitGeometry(1080, 1920)), 1080, 1920, 30)

	want := "setsar=1,fps=30,fade=t=in:st=0:d=0.200,fade=t=out:st=1.800:d=0.200,format=yuv420p"
	if rc.Filter != want {
		t.Errorf("Filter = %q\nwant     %q", rc.Filter, want)
	}
	if rc.Plain != "setsar=1,fps=30,format=yuv420p" {
		t.Errorf("Plain = %q", rc.Plain)
	}
	if rc.Effect.Name != "fade" {
		t.Errorf("Effect = %+v", rc.Effect)
	}
}

func TestApply_EffectFilters(t *testing.T) {
	landscape := FitGeometry(1920, 1080)
	tests := []struct {
		tr   Transition
		want []string
	}{
		{ZoomIn, []string{"scale=3414:1920,crop=1080:1920:1167:0", "zoompan=z='max(1,1+0.2*(on/30))'", "s=1080x1920:fps=30"}},
		{ZoomOut, []string{"zoompan=z='max(1,1.2-0.2*(on/30))'"}},
		{ScaleBounce, []string{"zoompan=z='max(1,1+0.1*abs((on/30)-0.5))'"}},
		{SpinRight, []string{"rotate=a='3*PI/180*t':c=black:ow=1080:oh=1920"}},
		{SpinLeft, []string{"rotate=a='-3*PI/180*t'"}},
		{Crossfade, []string{"fade=t=in:st=0:d=0.400", "fade=t=out:st=1.600:d=0.400"}},
	}
	for _, tt := range tests {
		t.Run(tt.tr.String(), func(t *testing.T) {
			rc := Apply(segmentWith(tt.tr, 2, landscape), 1080, 1920, 30)
			for _, w := range tt.want {
				if !strings.Contains(rc.Filter, w) {
					t.Errorf("Filter %q missing %q", rc.Filter, w)
				}
			}
			if !strings.HasSuffix(rc.Filter, "format=yuv420p") {
				t.Errorf("Filter %q does not end in format=yuv420p", rc.Filter)
			}
			if strings.Contains(rc.Plain, "fade") || strings.Contains(rc.Plain, "zoompan") {
				t.Errorf("Plain %q carries effects", rc.Plain)
			}
		})
	}
}

func TestApply_FadeClampedToShortSegment(t *testing.T) {
	rc := Apply(segmentWith(DramaticFade, 0.3, FitGeometry(1080, 1920)), 1080, 1920, 30)
	if !strings.Contains(rc.Filter, "fade=t=out:st=0.000:d=0.300") {
		t.Errorf("Filter %q should clamp the fade-out to the segment", rc.Filter)
	}
}

func TestApply_UnknownGeometryCoverFits(t *testing.T) {
	rc := Apply(segmentWith(Fade, 2, Geometry{}), 1080, 1920, 30)
	if !strings.HasPrefix(rc.Filter, "scale=1080:1920:force_original_aspect_ratio=increase,crop=1080:1920,") {
		t.Errorf("Filter = %q", rc.Filter)
	}
}

func TestApply_IsPure(t *testing.T) {
	for _, tr := range AllTransitions() {
		seg := segmentWith(tr, 1.7, FitGeometry(1280, 720))
		a := Apply(seg, 1080, 1920, 30)
		b := Apply(seg, 1080, 1920, 30)
		if !reflect.DeepEqual(a, b) {
			t.Errorf("%s: Apply is not deterministic", tr)
		}
	}
}
