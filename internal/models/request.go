package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

type PreprocessMode string

const (
	PreprocessCrop    PreprocessMode = "crop"
	PreprocessResize  PreprocessMode = "resize"
	PreprocessFull    PreprocessMode = "full"
	PreprocessExtCrop PreprocessMode = "extcrop"
	PreprocessExtFull PreprocessMode = "extfull"
)

// Params are the caller-tunable knobs of one generation.
type Params struct {
	Preprocess  PreprocessMode `json:"preprocess" validate:"oneof=crop resize full extcrop extfull"`
	StillMode   bool           `json:"still_mode"`
	UseEnhancer bool           `json:"use_enhancer"`
	BatchSize   int            `json:"batch_size" validate:"gte=1"`
	Size        int            `json:"size" validate:"oneof=256 512"`
	PoseStyle   int            `json:"pose_style" validate:"gte=0,lte=45"`
}

func DefaultParams() Params {
	return Params{
		Preprocess:  PreprocessCrop,
		StillMode:   false,
		UseEnhancer: false,
		BatchSize:   1,
		Size:        256,
		PoseStyle:   0,
	}
}

// GenerationRequest is built once per inbound call and not mutated afterwards.
type GenerationRequest struct {
	SourceImage string `validate:"required"`
	DrivenAudio string `validate:"required"`
	Params
}

func NewGenerationRequest(image, audio string, params Params) (GenerationRequest, error) {
	req := GenerationRequest{
		SourceImage: image,
		DrivenAudio: audio,
		Params:      params,
	}
	if err := req.Validate(); err != nil {
		return GenerationRequest{}, err
	}
	return req, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (r GenerationRequest) Validate() error {
	return validateStruct(r)
}

// Validate checks the parameters alone, before any input file exists.
func (p Params) Validate() error {
	return validateStruct(p)
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describeField(fe))
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, "; "))
}

var fieldNames = map[string]string{
	"SourceImage": "image",
	"DrivenAudio": "audio",
	"Preprocess":  "preprocess",
	"BatchSize":   "batch_size",
	"Size":        "size",
	"PoseStyle":   "pose_style",
}

func describeField(fe validator.FieldError) string {
	name, ok := fieldNames[fe.Field()]
	if !ok {
		name = fe.Field()
	}
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %v", name, fe.Param(), fe.Value())
	case "gte":
		return fmt.Sprintf("%s must be >= %s, got %v", name, fe.Param(), fe.Value())
	case "lte":
		return fmt.Sprintf("%s must be <= %s, got %v", name, fe.Param(), fe.Value())
	}
	return fmt.Sprintf("%s is invalid", name)
}
