package api

import (
	"errors"
	"fmt"

	"github.com/MrWong99/chattervc/internal/pipeline"
	"github.com/MrWong99/chattervc/pkg/provider/convert"
)

// Default request values for optional speech fields.
const (
	defaultFormat       = "wav"
	defaultLanguageID   = "en"
	defaultCFGWeight    = 0.5
	defaultExaggeration = 0.5
)

// Models served by this API.
var models = []string{pipeline.EngineChatterbox, pipeline.EngineChatterboxRVC}

// speechRequest is the body of POST /v1/audio/speech. Pointer fields tell
// absent keys from zero values.
type speechRequest struct {
	Model *string `json:"model"`
	Input *string `json:"input"`
	Voice *string `json:"voice"`

	Format         string `json:"format"`
	ResponseFormat string `json:"response_format"`
	SampleRate     *int   `json:"sample_rate"`

	LanguageID   *string  `json:"language_id"`
	CFGWeight    *float64 `json:"cfg_weight"`
	Exaggeration *float64 `json:"exaggeration"`

	RVCPitch          *int     `json:"rvc_pitch"`
	RVCIndexRate      *float64 `json:"rvc_index_rate"`
	RVCProtect        *float64 `json:"rvc_protect"`
	RVCF0Method       string   `json:"rvc_f0_method"`
	RVCVolumeEnvelope *float64 `json:"rvc_volume_envelope"`
	RVCSplitAudio     bool     `json:"rvc_split_audio"`
	RVCF0Autotune     bool     `json:"rvc_f0_autotune"`
	RVCCleanAudio     bool     `json:"rvc_clean_audio"`
	RVCSID            *int     `json:"rvc_sid"`
}

// toPipeline checks the required keys and fills defaults. defaultRate is used
// when sample_rate is absent.
func (s speechRequest) toPipeline(defaultRate int) (pipeline.Request, error) {
	var missing []error
	required := []struct {
		name string
		v    *string
	}{{"model", s.Model}, {"input", s.Input}, {"voice", s.Voice}}
	for _, f := range required {
		if f.v == nil {
			missing = append(missing, fmt.Errorf("field %q is required", f.name))
		}
	}
	if len(missing) > 0 {
		return pipeline.Request{}, fmt.Errorf("%w: %w", pipeline.ErrBadRequest, errors.Join(missing...))
	}

	req := pipeline.Request{
		Engine:       *s.Model,
		Text:         *s.Input,
		Voice:        *s.Voice,
		Format:       defaultFormat,
		SampleRate:   defaultRate,
		LanguageID:   defaultLanguageID,
		CFGWeight:    defaultCFGWeight,
		Exaggeration: defaultExaggeration,
		Conversion: convert.Params{
			Pitch:          s.RVCPitch,
			IndexRate:      s.RVCIndexRate,
			Protect:        s.RVCProtect,
			F0Method:       s.RVCF0Method,
			VolumeEnvelope: s.RVCVolumeEnvelope,
			SplitAudio:     s.RVCSplitAudio,
			F0Autotune:     s.RVCF0Autotune,
			CleanAudio:     s.RVCCleanAudio,
			SID:            s.RVCSID,
		},
	}
	switch {
	case s.Format != "":
		req.Format = s.Format
	case s.ResponseFormat != "":
		req.Format = s.ResponseFormat
	}
	if s.SampleRate != nil {
		req.SampleRate = *s.SampleRate
	}
	if s.LanguageID != nil {
		req.LanguageID = *s.LanguageID
	}
	if s.CFGWeight != nil {
		req.CFGWeight = *s.CFGWeight
	}
	if s.Exaggeration != nil {
		req.Exaggeration = *s.Exaggeration
	}
	return req, nil
}

type modelEntry struct {
	ID string `json:"id"`
}

type modelsResponse struct {
	Models []modelEntry `json:"models"`
}

// openAIModel mirrors the OpenAI /v1/models list entry.
type openAIModel struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type openAIModelList struct {
	Object string        `json:"object"`
	Data   []openAIModel `json:"data"`
}

type voicesResponse struct {
	Voices any `json:"voices"`
}

type infoResponse struct {
	Service    string   `json:"service"`
	Endpoints  []string `json:"endpoints"`
	VoicesRoot string   `json:"voices_root"`
	Device     string   `json:"device"`
	Models     []string `json:"models"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}
