package task

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"reelgen/internal/domain"
)

func validSpec() domain.GenerationSpec {
	return domain.GenerationSpec{
		Prompt:          "a timelapse of a city at dusk",
		Model:           "reel-standard",
		DurationSeconds: 10,
		AspectRatio:     "9:16",
	}
}

func TestValidateSpec(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*domain.GenerationSpec)
		wantOK bool
	}{
		{"valid", func(*domain.GenerationSpec) {}, true},
		{"empty prompt", func(s *domain.GenerationSpec) { s.Prompt = "" }, false},
		{"prompt too long", func(s *domain.GenerationSpec) {
			long := make([]byte, maxPromptLength+1)
			for i := range long {
				long[i] = 'a'
			}
			s.Prompt = string(long)
		}, false},
		{"unknown model", func(s *domain.GenerationSpec) { s.Model = "reel-ultra" }, false},
		{"duration not in set", func(s *domain.GenerationSpec) { s.DurationSeconds = 7 }, false},
		{"zero duration", func(s *domain.GenerationSpec) { s.DurationSeconds = 0 }, false},
		{"bad aspect ratio", func(s *domain.GenerationSpec) { s.AspectRatio = "4:3" }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			spec := validSpec()
			tc.mutate(&spec)
			err := ValidateSpec(spec)
			if tc.wantOK {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, domain.ErrInvalidSpec), "expected ErrInvalidSpec, got %v", err)
		})
	}
}

func TestCost(t *testing.T) {
	cases := []struct {
		model    string
		duration int
		want     int64
	}{
		{"reel-lite", 5, 1},
		{"reel-lite", 20, 4},
		{"reel-standard", 10, 4},
		{"reel-pro", 5, 5},
		{"reel-pro", 15, 15},
	}
	for _, tc := range cases {
		got := Cost(domain.GenerationSpec{Model: tc.model, DurationSeconds: tc.duration})
		assert.Equal(t, tc.want, got, "%s/%ds", tc.model, tc.duration)
	}
}
