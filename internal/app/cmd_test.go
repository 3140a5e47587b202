package app

import (
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		args []string
		want Command
	}{
		{[]string{}, CommandServe},
		{[]string{"serve"}, CommandServe},
		{[]string{"migrate"}, CommandMigrate},
		{[]string{"migrate", "down"}, CommandMigrate},
		{[]string{"cleanup"}, CommandCleanup},
		{[]string{"healthcheck"}, CommandHealthcheck},
		{[]string{"worker"}, CommandServe},
		{[]string{"unknown"}, CommandServe},
	}
	for _, tt := range tests {
		if got := ParseCommand(tt.args); got != tt.want {
			t.Errorf("ParseCommand(%v) = %q, want %q", tt.args, got, tt.want)
		}
	}
}

func TestIsMigrateDown(t *testing.T) {
	if !isMigrateDown([]string{"migrate", "down"}) {
		t.Error("migrate down should be detected")
	}
	if isMigrateDown([]string{"migrate"}) || isMigrateDown([]string{"serve", "down"}) {
		t.Error("only migrate down should be detected")
	}
}
