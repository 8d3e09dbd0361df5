package jobengine

import (
	"encoding/json"
	"testing"
)

func TestEnqueueJobRequestValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     enqueueJobRequest
		wantErr bool
	}{
		{
			name: "valid",
			req: enqueueJobRequest{
				Type:           "product_sync",
				Payload:        json.RawMessage(`{}`),
				Priority:       5,
				IdempotencyKey: "k1",
			},
			wantErr: false,
		},
		{
			name:    "missing type",
			req:     enqueueJobRequest{Payload: json.RawMessage(`{}`), IdempotencyKey: "k1"},
			wantErr: true,
		},
		{
			name:    "missing payload",
			req:     enqueueJobRequest{Type: "product_sync", IdempotencyKey: "k1"},
			wantErr: true,
		},
		{
			name:    "missing idempotency key",
			req:     enqueueJobRequest{Type: "product_sync", Payload: json.RawMessage(`{}`)},
			wantErr: true,
		},
		{
			name: "priority out of range",
			req: enqueueJobRequest{
				Type: "product_sync", Payload: json.RawMessage(`{}`),
				IdempotencyKey: "k1", Priority: 101,
			},
			wantErr: true,
		},
		{
			name: "negative max_attempts",
			req: enqueueJobRequest{
				Type: "product_sync", Payload: json.RawMessage(`{}`),
				IdempotencyKey: "k1", MaxAttempts: -1,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate.Struct(tt.req)
			if (err != nil) != tt.wantErr {
				t.Errorf("validate.Struct(%+v) error = %v, wantErr %v", tt.req, err, tt.wantErr)
			}
		})
	}
}
