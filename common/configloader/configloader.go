// common/configloader/configloader.go
package configloader

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load загружает конфиг в cfgPtr: defaults → ENV → YAML-файл.
// envPrefix — префикс ENV переменных, например: "MARKETSTREAM".
// Ключи с точками мапятся на ENV через "_": http.port → MARKETSTREAM_HTTP_PORT.
func Load(path, envPrefix string, cfgPtr interface{}) error {
	v := viper.New()

	// Шаг 1: зарегистрированные дефолты (заодно делают ключи видимыми для ENV)
	for key, val := range getDefaults() {
		v.SetDefault(key, val)
	}

	// Шаг 2: environment override
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Шаг 3: read file (if provided)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("configloader: read config %q: %w", path, err)
		}
	}

	// Шаг 4: decode
	if err := decode(v.AllSettings(), cfgPtr); err != nil {
		return fmt.Errorf("configloader: decode failed: %w", err)
	}

	// Шаг 5: validate if possible
	if vc, ok := cfgPtr.(interface{ Validate() error }); ok {
		if err := vc.Validate(); err != nil {
			return fmt.Errorf("configloader: validation failed: %w", err)
		}
	}

	return nil
}
