package app

import (
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want Command
	}{
		{"empty defaults to serve", []string{}, CommandServe},
		{"serve", []string{"serve"}, CommandServe},
		{"worker", []string{"worker"}, CommandWorker},
		{"migrate", []string{"migrate"}, CommandMigrate},
		{"healthcheck", []string{"healthcheck"}, CommandHealthcheck},
		{"unknown defaults to serve", []string{"unknown"}, CommandServe},
		{"ignores extra args", []string{"worker", "--flag", "value"}, CommandWorker},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseCommand(tt.args); got != tt.want {
				t.Errorf("ParseCommand(%v) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}

func TestParseMigrateArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    MigrateAction
		wantErr bool
	}{
		{"no args applies all", nil, MigrateAction{Name: MigrateUp}, false},
		{"up", []string{"up"}, MigrateAction{Name: MigrateUp}, false},
		{"version", []string{"version"}, MigrateAction{Name: MigrateVersion}, false},
		{"down defaults to one step", []string{"down"}, MigrateAction{Name: MigrateDown, Steps: 1}, false},
		{"down with steps", []string{"down", "2"}, MigrateAction{Name: MigrateDown, Steps: 2}, false},
		{"down with zero steps", []string{"down", "0"}, MigrateAction{}, true},
		{"down with non-numeric steps", []string{"down", "all"}, MigrateAction{}, true},
		{"unknown action", []string{"reset"}, MigrateAction{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMigrateArgs(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMigrateArgs(%v) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseMigrateArgs(%v) = %+v, want %+v", tt.args, got, tt.want)
			}
		})
	}
}
