package subtitles

import (
	"fmt"
	"strings"
	"time"

	"github.com/forPelevin/tubebite/internal/types"
)

const (
	groupWords = 3
	groupChars = 28
)

// Render builds an ASS script for the clip [start, end) on the given canvas.
// Each spoken word gets its own event that shows its group with that word in
// the "Hi" style. It reports false when the slice holds no words.
func Render(tr types.Transcript, start, end float64, canvas types.Canvas) (string, bool) {
	s, e := dur(start), dur(end)
	words := collectWords(tr, s, e)
	if len(words) == 0 {
		return "", false
	}
	groups := packWords(words, groupWords, groupChars)

	var b strings.Builder
	b.WriteString(assHeader(canvas))
	b.WriteString("\n\n[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
	for _, g := range groups {
		for ai, aw := range g.Words {
			if aw.End <= aw.Start {
				continue
			}
			parts := make([]string, len(g.Words))
			for wi, w := range g.Words {
				if wi == ai {
					parts[wi] = `{\rHi}` + w.Text + `{\r}`
				} else {
					parts[wi] = w.Text
				}
			}
			fmt.Fprintf(&b, "Dialogue: 0,%s,%s,Normal,,0,0,0,,%s\n", assTime(aw.Start), assTime(aw.End), strings.Join(parts, " "))
		}
	}
	return b.String(), true
}

type wword struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

type line struct {
	Start time.Duration
	End   time.Duration
	Words []wword
}

// collectWords returns clip-relative words. Engine word timings are used when
// a segment has them; otherwise the segment span is split evenly.
func collectWords(tr types.Transcript, start, end time.Duration) []wword {
	var out []wword
	for _, seg := range tr.Slice(start.Seconds(), end.Seconds()) {
		segWords := timedWords(seg)
		for _, w := range segWords {
			ws, we := w.Start, w.End
			if we <= start || ws >= end {
				continue
			}
			if ws < start {
				ws = start
			}
			if we > end {
				we = end
			}
			out = append(out, wword{Start: ws - start, End: we - start, Text: w.Text})
		}
	}
	// no word may outlive the next one's start
	for i := 0; i+1 < len(out); i++ {
		if out[i].End > out[i+1].Start {
			out[i].End = out[i+1].Start
		}
	}
	return out
}

func timedWords(seg types.Segment) []wword {
	var out []wword
	for _, w := range seg.Words {
		text := sanitizeASS(w.Word)
		if text == "" || w.End <= w.Start {
			continue
		}
		out = append(out, wword{Start: dur(w.Start), End: dur(w.End), Text: text})
	}
	if len(out) > 0 {
		return out
	}
	fields := strings.Fields(seg.Text)
	if len(fields) == 0 || seg.End <= seg.Start {
		return nil
	}
	step := (seg.End - seg.Start) / float64(len(fields))
	for i, f := range fields {
		text := sanitizeASS(f)
		if text == "" {
			continue
		}
		out = append(out, wword{
			Start: dur(seg.Start + float64(i)*step),
			End:   dur(seg.Start + float64(i+1)*step),
			Text:  text,
		})
	}
	return out
}

func packWords(words []wword, wordBudget, charBudget int) []line {
	var out []line
	cur := line{Start: words[0].Start}
	curLen := 0
	for i, w := range words {
		wl := len([]rune(w.Text))
		nextLen := curLen
		if curLen > 0 {
			nextLen++
		}
		nextLen += wl
		if len(cur.Words) > 0 && (len(cur.Words) >= wordBudget || nextLen > charBudget) {
			cur.End = cur.Words[len(cur.Words)-1].End
			out = append(out, cur)
			cur = line{Start: w.Start}
			curLen = 0
		}
		cur.Words = append(cur.Words, w)
		if curLen > 0 {
			curLen++
		}
		curLen += wl
		if i == len(words)-1 {
			cur.End = w.End
			out = append(out, cur)
		}
	}
	return out
}

// Style returns the font size and bottom margin used on canvas.
func Style(canvas types.Canvas) (fontSize, marginV int) {
	short := canvas.W
	if canvas.H < short {
		short = canvas.H
	}
	fontSize = short * 7 / 100
	if fontSize < 60 {
		fontSize = 60
	}
	return fontSize, canvas.H * 22 / 100
}

func assHeader(canvas types.Canvas) string {
	fs, mv := Style(canvas)
	return strings.TrimSpace(fmt.Sprintf(`
[Script Info]
ScriptType: v4.00+
PlayResX: %[1]d
PlayResY: %[2]d
WrapStyle: 2
ScaledBorderAndShadow: yes

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Normal,Arial,%[3]d,&H00FFFFFF,&H000000FF,&H00000000,&H00000000,-1,0,0,0,100,100,1,0,1,3,0,2,60,60,%[4]d,1
Style: Hi,Arial,%[3]d,&H0000FFFF,&H000000FF,&H00000000,&H00000000,-1,0,0,0,100,100,1,0,1,3,0,2,60,60,%[4]d,1
`, canvas.W, canvas.H, fs, mv))
}

func assTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hs := int(d / time.Hour)
	d -= time.Duration(hs) * time.Hour
	ms := int(d / time.Minute)
	d -= time.Duration(ms) * time.Minute
	s := int(d / time.Second)
	d -= time.Duration(s) * time.Second
	cs := int(d / (10 * time.Millisecond))
	return fmt.Sprintf("%d:%02d:%02d.%02d", hs, ms, s, cs)
}

func sanitizeASS(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "{", "(")
	s = strings.ReplaceAll(s, "}", ")")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}

func dur(sec float64) time.Duration { return time.Duration(sec * float64(time.Second)) }
