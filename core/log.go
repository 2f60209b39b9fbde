package core

// LogEntry is one accepted write as seen by the consistency validator.
type LogEntry struct {
	Name    string    `json:"name" yaml:"name"`
	Version VersionID `json:"version" yaml:"version"`
	Parent  VersionID `json:"parent,omitempty" yaml:"parent,omitempty"`
}

// Validate checks the required fields.
func (e LogEntry) Validate() error {
	switch {
	case e.Name == "":
		return &MalformedLogEntryError{Reason: "missing object name"}
	case e.Version == NoVersion:
		return &MalformedLogEntryError{Reason: "missing version"}
	}
	return nil
}
