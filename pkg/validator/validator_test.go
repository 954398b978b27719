package validator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type sampleInput struct {
	Title    string  `json:"title" validate:"required,max=16"`
	Severity string  `json:"severity" validate:"required,oneof=low medium high critical"`
	Radius   float64 `json:"radius" validate:"gte=0"`
}

func TestValidateStructPasses(t *testing.T) {
	err := ValidateStruct(sampleInput{Title: "Loadshedding", Severity: "medium", Radius: 500})
	require.NoError(t, err)
}

func TestValidateStructReportsJSONFieldNames(t *testing.T) {
	err := ValidateStruct(sampleInput{Severity: "extreme", Radius: -1})
	require.Error(t, err)

	failures, ok := err.(ValidationErrors)
	require.True(t, ok)
	require.Len(t, failures, 3)

	fields := make(map[string]string, len(failures))
	for _, failure := range failures {
		fields[failure.Field] = failure.Tag
	}
	require.Equal(t, "required", fields["title"])
	require.Equal(t, "oneof", fields["severity"])
	require.Equal(t, "gte", fields["radius"])

	require.Contains(t, err.Error(), "severity failed on oneof")
}
