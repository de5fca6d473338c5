package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/afero"

	"github.com/flashlink/flashlink/pkg/flashlib"
)

// imageFs is swapped for an in-memory fs in tests.
var imageFs = afero.NewOsFs()

// loadImage reads the update image and resolves its update type, either from
// the explicit flag or from the file name.
func loadImage(fs afero.Fs, name, explicitType string) ([]byte, flashlib.UpdateType, error) {
	data, err := afero.ReadFile(fs, name)
	if err != nil {
		return nil, "", err
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%s is empty", name)
	}
	typ, err := resolveUpdateType(name, explicitType)
	if err != nil {
		return nil, "", err
	}
	return data, typ, nil
}

func resolveUpdateType(name, explicit string) (flashlib.UpdateType, error) {
	switch strings.ToLower(explicit) {
	case "":
	case string(flashlib.UpdateFirmware):
		return flashlib.UpdateFirmware, nil
	case string(flashlib.UpdateFilesystem):
		return flashlib.UpdateFilesystem, nil
	default:
		return "", fmt.Errorf("unknown update type %q", explicit)
	}
	lower := strings.ToLower(name)
	if strings.Contains(lower, "littlefs") || strings.Contains(lower, "spiffs") || strings.Contains(lower, "filesystem") {
		return flashlib.UpdateFilesystem, nil
	}
	return flashlib.UpdateFirmware, nil
}
