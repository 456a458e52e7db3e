package validator

import "testing"

type classifyRequest struct {
	Classification string `validate:"required,classification"`
	Reason         string `validate:"omitempty,notblank"`
}

func TestClassificationRule(t *testing.T) {
	val := New()

	tests := []struct {
		name    string
		req     classifyRequest
		wantErr bool
	}{
		{name: "subscription", req: classifyRequest{Classification: "subscription"}},
		{name: "addon upper case", req: classifyRequest{Classification: "ADDON"}},
		{name: "ignored", req: classifyRequest{Classification: "ignored"}},
		{name: "unknown", req: classifyRequest{Classification: "bundle"}, wantErr: true},
		{name: "missing", req: classifyRequest{}, wantErr: true},
		{name: "blank reason", req: classifyRequest{Classification: "addon", Reason: "   "}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := val.Struct(tt.req)
			if tt.wantErr && err == nil {
				t.Fatalf("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}
