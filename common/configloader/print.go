// common/configloader/print.go
package configloader

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// PrintConfig выводит конфиг в YAML. Секреты маскирует сам тип (см. String/MarshalYAML).
func PrintConfig(w io.Writer, v interface{}) error {
	b, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("configloader: marshal: %w", err)
	}
	_, err = fmt.Fprintf(w, "Loaded configuration:\n%s", b)
	return err
}
