package models

import "time"

// Notice is a transient message shown to the operator.
type Notice struct {
	Text string
	Long bool
	At   time.Time
}

// Snapshot is what the screen renders.
type Snapshot struct {
	Record   LocationRecord
	Notice   Notice
	Active   bool   // location updates subscribed
	Required bool   // updates were begun and should survive pause/resume
	Version  uint64 // increases with every published change; 0 for state never published
}
