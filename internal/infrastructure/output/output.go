package output

import (
	"fmt"
	"io"

	"github.com/depgate-dev/depgate/internal/domain"
)

// Format selects the report serialization §6 supports via --format.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSON  Format = "json"
	FormatSARIF Format = "sarif"
)

// Write dispatches to the formatter matching format.
func Write(w io.Writer, format Format, packages []*domain.Package, toolVersion string) error {
	switch format {
	case FormatCSV, "":
		return WriteCSV(w, packages)
	case FormatJSON:
		return WriteJSON(w, packages)
	case FormatSARIF:
		return WriteSARIF(w, packages, toolVersion)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
