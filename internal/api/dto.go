package api

import (
	"github.com/go-playground/validator/v10"

	"github.com/forPelevin/tubebite/internal/types"
)

type SettingsDTO struct {
	NumberOfClips     int    `json:"numberOfClips" validate:"required,min=1,max=10"`
	Duration          string `json:"duration" validate:"omitempty,clipduration"`
	AspectRatio       string `json:"aspectRatio" validate:"required,oneof=9:16 1:1 4:5 16:9"`
	GenerateSubtitles bool   `json:"generateSubtitles"`
	Template          string `json:"template" validate:"omitempty,oneof=minimal gaming podcast cinematic social news"`
}

type GenerateDTO struct {
	URL      string      `json:"url" validate:"required,url"`
	Settings SettingsDTO `json:"settings"`
}

type GenerateResponse struct {
	RunID string      `json:"runId"`
	Stage types.Stage `json:"stage"`
}

type TrashResponse struct {
	Item                 types.HistoryItem `json:"item"`
	PermanentDeleteAfter string            `json:"permanentDeleteAfter"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("clipduration", func(fl validator.FieldLevel) bool {
		_, err := types.ParseClipDuration(fl.Field().String())
		return err == nil
	})
	return v
}

// request maps validated settings onto a generation request.
func (s SettingsDTO) request(src types.Source) types.GenerationRequest {
	d, _ := types.ParseClipDuration(s.Duration)
	return types.GenerationRequest{
		Source:      src,
		ClipCount:   s.NumberOfClips,
		Duration:    d,
		AspectRatio: types.AspectRatio(s.AspectRatio),
		Subtitles:   s.GenerateSubtitles,
		Template:    s.Template,
	}
}
