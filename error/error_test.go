package error

import (
	"errors"
	"fmt"
	"testing"
)

func TestSourceError(t *testing.T) {
	cause := fmt.Errorf("undefined symbol")
	tests := []struct {
		caption string
		err     *SourceError
		want    string
	}{
		{
			caption: "full position",
			err: &SourceError{
				Cause:      cause,
				SourceName: "g.grk",
				Row:        3,
				Col:        7,
			},
			want: "g.grk: 3:7: error: undefined symbol",
		},
		{
			caption: "row only",
			err: &SourceError{
				Cause:      cause,
				SourceName: "g.grk",
				Row:        3,
			},
			want: "g.grk: 3: error: undefined symbol",
		},
		{
			caption: "detail",
			err: &SourceError{
				Cause:  cause,
				Detail: "foo",
			},
			want: "error: undefined symbol: foo",
		},
	}
	for _, tt := range tests {
		t.Run(tt.caption, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Fatalf("unexpected message; want: %v, got: %v", tt.want, got)
			}
			if !errors.Is(tt.err, cause) {
				t.Fatalf("the cause must be unwrappable")
			}
		})
	}
}

func TestSourceErrors(t *testing.T) {
	errs := SourceErrors{
		{Cause: fmt.Errorf("first"), Row: 1},
		{Cause: fmt.Errorf("second"), Row: 2},
	}
	want := "1: error: first\n2: error: second"
	if got := errs.Error(); got != want {
		t.Fatalf("unexpected message; want: %v, got: %v", want, got)
	}
}
