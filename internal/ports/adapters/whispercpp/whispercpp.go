package whispercpp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/forPelevin/tubebite/internal/types"
)

type Adapter struct {
	bin      string
	model    string
	language string
	threads  int
}

// New returns a whisper.cpp runner. An empty language means auto-detect.
func New(binPath, modelPath, language string, threads int) *Adapter {
	if language == "" {
		language = "auto"
	}
	return &Adapter{bin: binPath, model: modelPath, language: language, threads: threads}
}

func (a *Adapter) Transcribe(ctx context.Context, wavPath, cacheDir string) (types.Transcript, error) {
	if _, err := os.Stat(a.model); err != nil {
		return types.Transcript{}, types.Permanent(fmt.Errorf("whisper model: %w", err))
	}
	outPrefix := filepath.Join(cacheDir, "whisper")
	args := []string{
		"-m", a.model,
		"-f", wavPath,
		"-l", a.language,
		"-ojf",
		"-of", outPrefix,
		"-np",
	}
	if a.threads > 0 {
		args = append(args, "-t", strconv.Itoa(a.threads))
	}
	cmd := exec.CommandContext(ctx, a.bin, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper.cpp failed: %w\n%s", err, string(b))
	}

	jb, err := os.ReadFile(outPrefix + ".json")
	if err != nil {
		return types.Transcript{}, fmt.Errorf("read whisper output: %w", err)
	}
	return parseOutput(jb)
}

type whisperJSON struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets offsets `json:"offsets"`
		Text    string  `json:"text"`
		Tokens  []struct {
			Text    string  `json:"text"`
			Offsets offsets `json:"offsets"`
		} `json:"tokens"`
	} `json:"transcription"`
}

type offsets struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

func parseOutput(b []byte) (types.Transcript, error) {
	var raw whisperJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return types.Transcript{}, fmt.Errorf("parse whisper output: %w", err)
	}
	tr := types.Transcript{Language: raw.Result.Language}
	for _, s := range raw.Transcription {
		text := strings.TrimSpace(s.Text)
		if text == "" || isNonSpeech(text) {
			continue
		}
		seg := types.Segment{
			Start: ms(s.Offsets.From),
			End:   ms(s.Offsets.To),
			Text:  text,
		}
		for _, tok := range s.Tokens {
			t := tok.Text
			if strings.HasPrefix(t, "[_") || strings.TrimSpace(t) == "" {
				continue
			}
			// a leading space starts a new word; anything else continues it
			if len(seg.Words) == 0 || strings.HasPrefix(t, " ") {
				seg.Words = append(seg.Words, types.Word{
					Start: ms(tok.Offsets.From),
					End:   ms(tok.Offsets.To),
					Word:  strings.TrimSpace(t),
				})
				continue
			}
			last := &seg.Words[len(seg.Words)-1]
			last.Word += t
			last.End = ms(tok.Offsets.To)
		}
		tr.Segments = append(tr.Segments, seg)
	}
	return tr, nil
}

func isNonSpeech(text string) bool {
	t := strings.ToUpper(strings.Trim(text, " []()*"))
	switch t {
	case "BLANK_AUDIO", "MUSIC", "SILENCE", "NO SPEECH", "INAUDIBLE":
		return true
	}
	return false
}

func ms(v int64) float64 { return float64(v) / 1000 }
