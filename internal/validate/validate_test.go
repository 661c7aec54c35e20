package validate

import (
	"testing"

	"github.com/pavelanni/quizdesk/internal/apperr"
)

type item struct {
	Name string `json:"name" validate:"required"`
}

type payload struct {
	Date  string `json:"date" validate:"required,day"`
	Email string `json:"email" validate:"omitempty,email"`
	Kind  string `json:"kind" validate:"oneof=a b"`
	Items []item `json:"items" validate:"required,min=1,dive"`
}

func TestStruct(t *testing.T) {
	tests := []struct {
		name       string
		in         payload
		wantFields []string
	}{
		{"valid", payload{Date: "2024-01-01", Kind: "a", Items: []item{{Name: "x"}}}, nil},
		{"bad date", payload{Date: "01/01/2024", Kind: "a", Items: []item{{Name: "x"}}}, []string{"date"}},
		{"impossible date", payload{Date: "2024-02-30", Kind: "a", Items: []item{{Name: "x"}}}, []string{"date"}},
		{"empty items", payload{Date: "2024-01-01", Kind: "b", Items: []item{}}, []string{"items"}},
		{"nested item", payload{Date: "2024-01-01", Kind: "b", Items: []item{{Name: "x"}, {}}}, []string{"items[1].name"}},
		{"several", payload{Email: "nope", Kind: "c"}, []string{"date", "email", "kind", "items"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(tt.in)
			if len(tt.wantFields) == 0 {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			e, ok := apperr.As(err)
			if !ok || e.Kind != apperr.KindValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
			for _, f := range tt.wantFields {
				if _, ok := e.Fields[f]; !ok {
					t.Errorf("expected field %q in %v", f, e.Fields)
				}
			}
			if len(e.Fields) != len(tt.wantFields) {
				t.Errorf("expected %d fields, got %v", len(tt.wantFields), e.Fields)
			}
		})
	}
}

func TestIsDate(t *testing.T) {
	if !IsDate("2024-01-01") {
		t.Error("expected 2024-01-01 to be valid")
	}
	for _, s := range []string{"", "2024-1-1", "2024-13-01", "tomorrow"} {
		if IsDate(s) {
			t.Errorf("expected %q to be invalid", s)
		}
	}
}
