package cmd

import (
	"testing"

	"github.com/msto63/hive/internal/eventlog"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    eventlog.Kind
		wantErr bool
	}{
		{"", "", false},
		{"sel", eventlog.KindSEL, false},
		{"SDD", eventlog.KindSDD, false},
		{"LOG_SSL", eventlog.KindSSL, false},
		{"log_ssl", eventlog.KindSSL, false},
		{"foo", "", true},
	}

	for _, tt := range tests {
		got, err := parseKind(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseKind(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseKind(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
