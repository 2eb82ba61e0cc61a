package executor

import "testing"

func TestNewFactory(t *testing.T) {
	tests := []struct {
		kind, bin string
		wantErr   bool
	}{
		{kind: "", wantErr: false},
		{kind: KindLocal, wantErr: false},
		{kind: KindProcess, bin: "/usr/local/bin/transformer", wantErr: false},
		{kind: KindProcess, wantErr: true},
		{kind: "thread", wantErr: true},
	}
	for _, tc := range tests {
		f, err := NewFactory(tc.kind, tc.bin)
		if (err != nil) != tc.wantErr {
			t.Errorf("NewFactory(%q, %q) error = %v; wantErr %v", tc.kind, tc.bin, err, tc.wantErr)
		}
		if err == nil && f == nil {
			t.Errorf("NewFactory(%q, %q) returned a nil factory", tc.kind, tc.bin)
		}
	}
}
