package watch_test

import (
	"testing"

	"github.com/felixgeelhaar/boardsync/internal/infrastructure/watch"
)

func TestPatternFilter(t *testing.T) {
	tests := []struct {
		name    string
		include []string
		exclude []string
		path    string
		match   bool
	}{
		{"anything by default", nil, nil, "/drop/report.pdf", true},
		{"hidden file", nil, nil, "/drop/.DS_Store", false},
		{"partial download", nil, nil, "/drop/video.mp4.crdownload", false},
		{"editor swap", nil, nil, "/drop/notes.txt.swp", false},
		{"include match", []string{"*.png", "*.jpg"}, nil, "/drop/shot.png", true},
		{"include miss", []string{"*.png"}, nil, "/drop/notes.txt", false},
		{"extra exclude", nil, []string{"*.log"}, "/drop/app.log", false},
		{"exclude wins", []string{"*.png"}, []string{"draft*"}, "/drop/draft.png", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := watch.NewPatternFilter(tt.include, tt.exclude)
			if got := f.Matches(tt.path); got != tt.match {
				t.Errorf("Matches(%q) = %v, want %v", tt.path, got, tt.match)
			}
		})
	}
}
