package metrics

import (
	"strings"
	"testing"
)

func TestCounterRender(t *testing.T) {
	r := NewRegistry()
	r.IncCounter("lingo_translation_cache_total", map[string]string{"result": "hit"})
	r.IncCounter("lingo_translation_cache_total", map[string]string{"result": "hit"})
	r.IncCounter("lingo_translation_cache_total", map[string]string{"result": "miss"})

	out := r.Render()
	if !strings.Contains(out, `lingo_translation_cache_total{result="hit"} 2`) {
		t.Fatalf("missing hit series:\n%s", out)
	}
	if !strings.Contains(out, `lingo_translation_cache_total{result="miss"} 1`) {
		t.Fatalf("missing miss series:\n%s", out)
	}
}

func TestHistogramBucketsCumulative(t *testing.T) {
	r := NewRegistry()
	r.ObserveHistogram("lingo_pipeline_stage_latency_ms", 30, map[string]string{"stage": "stt"})
	r.ObserveHistogram("lingo_pipeline_stage_latency_ms", 300, map[string]string{"stage": "stt"})

	out := r.Render()
	if !strings.Contains(out, `lingo_pipeline_stage_latency_ms_bucket{le="50",stage="stt"} 1`) {
		t.Fatalf("expected 30ms observation in le=50 bucket:\n%s", out)
	}
	if !strings.Contains(out, `lingo_pipeline_stage_latency_ms_bucket{le="+Inf",stage="stt"} 2`) {
		t.Fatalf("expected cumulative +Inf bucket of 2:\n%s", out)
	}
	if !strings.Contains(out, `lingo_pipeline_stage_latency_ms_count{stage="stt"} 2`) {
		t.Fatalf("expected count of 2:\n%s", out)
	}
}

func TestUnknownMetricIgnored(t *testing.T) {
	r := NewRegistry()
	r.IncCounter("does_not_exist", nil)
	if strings.Contains(r.Render(), "does_not_exist") {
		t.Fatal("unregistered metric rendered")
	}
}
