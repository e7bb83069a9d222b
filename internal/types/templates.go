package types

type Template struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

const DefaultTemplate = "minimal"

var templates = []Template{
	{ID: "minimal", Name: "Minimal", Category: "Clean", Description: "Clean, no-frills look"},
	{ID: "gaming", Name: "Gaming", Category: "Gaming", Description: "Neon overlays, chat highlights"},
	{ID: "podcast", Name: "Podcast", Category: "Talk", Description: "Waveform visuals, speaker names"},
	{ID: "cinematic", Name: "Cinematic", Category: "Premium", Description: "Letterbox bars, film grain"},
	{ID: "social", Name: "Social Pop", Category: "Viral", Description: "Bold text, emojis, animations"},
	{ID: "news", Name: "News Flash", Category: "Info", Description: "Lower thirds, ticker style"},
}

func Templates() []Template {
	return append([]Template(nil), templates...)
}

func LookupTemplate(id string) (Template, bool) {
	for _, t := range templates {
		if t.ID == id {
			return t, true
		}
	}
	return Template{}, false
}
