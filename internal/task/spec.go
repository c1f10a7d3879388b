package task

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"reelgen/internal/domain"
)

const maxPromptLength = 2000

// creditsPerFiveSeconds prices each model tier. Cost is deterministic from
// the spec alone so the debit can happen before any provider call.
var creditsPerFiveSeconds = map[string]int64{
	"reel-lite":     1,
	"reel-standard": 2,
	"reel-pro":      5,
}

var allowedDurations = []interface{}{5, 10, 15, 20}

var allowedAspectRatios = []interface{}{"16:9", "9:16", "1:1"}

func allowedModels() []interface{} {
	models := make([]interface{}, 0, len(creditsPerFiveSeconds))
	for m := range creditsPerFiveSeconds {
		models = append(models, m)
	}
	return models
}

// ValidateSpec checks a generation spec against the allowed sets. The error
// wraps domain.ErrInvalidSpec so handlers can map it to a 400.
func ValidateSpec(spec domain.GenerationSpec) error {
	err := validation.ValidateStruct(&spec,
		validation.Field(&spec.Prompt, validation.Required, validation.Length(1, maxPromptLength)),
		validation.Field(&spec.Model, validation.Required, validation.In(allowedModels()...)),
		validation.Field(&spec.DurationSeconds, validation.Required, validation.In(allowedDurations...)),
		validation.Field(&spec.AspectRatio, validation.Required, validation.In(allowedAspectRatios...)),
	)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrInvalidSpec, err)
	}
	return nil
}

// Cost computes the credit price of a spec. Assumes the spec already passed
// validation; unknown models price as zero and are rejected there.
func Cost(spec domain.GenerationSpec) int64 {
	rate := creditsPerFiveSeconds[spec.Model]
	return rate * int64(spec.DurationSeconds) / 5
}
