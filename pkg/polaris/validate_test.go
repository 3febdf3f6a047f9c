package polaris

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		kind     ValidationKind
		value    interface{}
		expected interface{}
		wantErr  bool
	}{
		{name: "uuid", kind: ValidateUUID, value: "6A1A1C4B-2D5B-4E8B-9F3A-1B2C3D4E5F60", expected: "6a1a1c4b-2d5b-4e8b-9f3a-1b2c3d4e5f60"},
		{name: "bad uuid", kind: ValidateUUID, value: "nope", wantErr: true},
		{name: "first int", kind: ValidateFirst, value: 25, expected: 25},
		{name: "first string", kind: ValidateFirst, value: "10", expected: 10},
		{name: "first zero", kind: ValidateFirst, value: 0, wantErr: true},
		{name: "first fraction", kind: ValidateFirst, value: 1.5, wantErr: true},
		{name: "id", kind: ValidateID, value: " cluster-1 ", expected: "cluster-1"},
		{name: "empty id", kind: ValidateID, value: "  ", wantErr: true},
		{name: "bool string", kind: ValidateBoolean, value: "true", expected: true},
		{name: "bool junk", kind: ValidateBoolean, value: "maybe", wantErr: true},
		{name: "timeout seconds", kind: ValidateTimeout, value: 15, expected: 15 * time.Second},
		{name: "timeout duration string", kind: ValidateTimeout, value: "2m", expected: 2 * time.Minute},
		{name: "timeout not a number", kind: ValidateTimeout, value: "soon", wantErr: true},
		{name: "timeout negative", kind: ValidateTimeout, value: -1, wantErr: true},
		{name: "operation name", kind: ValidateOperationName, value: "core_sla_list", expected: "core_sla_list"},
		{name: "operation name caps", kind: ValidateOperationName, value: "CoreSla", wantErr: true},
		{name: "unknown kind", kind: ValidationKind(99), value: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Validate(tt.kind, "field", tt.value)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsValidation(err))

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
