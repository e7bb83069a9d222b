package whispercpp

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/forPelevin/tubebite/internal/types"
)

func TestParseOutput(t *testing.T) {
	t.Parallel()

	raw := `{
	  "result": {"language": "es"},
	  "transcription": [
	    {"offsets": {"from": 0, "to": 1500}, "text": " [BLANK_AUDIO]"},
	    {"offsets": {"from": 1500, "to": 4000}, "text": " Hola amigos",
	     "tokens": [
	       {"text": "[_BEG_]", "offsets": {"from": 1500, "to": 1500}},
	       {"text": " Hol", "offsets": {"from": 1500, "to": 1900}},
	       {"text": "a", "offsets": {"from": 1900, "to": 2200}},
	       {"text": " amigos", "offsets": {"from": 2300, "to": 4000}}
	     ]},
	    {"offsets": {"from": 4000, "to": 5000}, "text": "   "}
	  ]
	}`
	tr, err := parseOutput([]byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if tr.Language != "es" {
		t.Fatalf("language: %q", tr.Language)
	}
	if len(tr.Segments) != 1 {
		t.Fatalf("expected 1 speech segment, got %d", len(tr.Segments))
	}
	seg := tr.Segments[0]
	if seg.Start != 1.5 || seg.End != 4 || seg.Text != "Hola amigos" {
		t.Fatalf("unexpected segment %+v", seg)
	}
	if len(seg.Words) != 2 || seg.Words[0].Word != "Hola" || seg.Words[0].End != 2.2 || seg.Words[1].Start != 2.3 {
		t.Fatalf("unexpected words %+v", seg.Words)
	}
}

func TestParseOutput_NoSpeechIsEmpty(t *testing.T) {
	t.Parallel()

	tr, err := parseOutput([]byte(`{"result":{"language":"en"},"transcription":[]}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !tr.Empty() {
		t.Fatalf("expected empty transcript")
	}
}

func TestTranscribe_MissingModelIsPermanent(t *testing.T) {
	t.Parallel()

	a := New("whisper-cli", filepath.Join(t.TempDir(), "missing.bin"), "", 0)
	_, err := a.Transcribe(context.Background(), "in.wav", t.TempDir())
	if err == nil || !types.IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}
