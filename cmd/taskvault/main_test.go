package main

import "testing"

func TestExportOutPath(t *testing.T) {
	tests := []struct {
		name    string
		project string
		out     string
		want    string
	}{
		{name: "explicit path wins", project: "p1", out: "snapshot.json", want: "snapshot.json"},
		{name: "default from project id", project: "p1", out: "", want: "p1.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exportOutPath(tt.project, tt.out); got != tt.want {
				t.Fatalf("path mismatch: got %q want %q", got, tt.want)
			}
		})
	}
}
