package config

import "fmt"

// OutputFormat names one of the target formats a convert command can
// write to. Kept as a distinct type from detect.Format since not every
// detectable input format is a valid conversion target.
type OutputFormat string

const (
	OutputFormatEPUB2     OutputFormat = "epub2"
	OutputFormatEPUB3     OutputFormat = "epub3"
	OutputFormatPlainText OutputFormat = "txt"
)

// Ext returns the file extension conventionally used for the format.
func (f OutputFormat) Ext() string {
	switch f {
	case OutputFormatEPUB2, OutputFormatEPUB3:
		return ".epub"
	case OutputFormatPlainText:
		return ".txt"
	default:
		return ""
	}
}

func (f OutputFormat) Validate() error {
	switch f {
	case OutputFormatEPUB2, OutputFormatEPUB3, OutputFormatPlainText:
		return nil
	default:
		return fmt.Errorf("unknown output format %q", string(f))
	}
}
