package cmd

import (
	"testing"

	"github.com/spf13/afero"

	"github.com/flashlink/flashlink/pkg/flashlib"
)

func TestLoadImage(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "firmware.bin", []byte{0xE9, 0x01, 0x02}, 0o644); err != nil {
		t.Fatalf("writing fixture: %s", err.Error())
	}
	if err := afero.WriteFile(fs, "empty.bin", nil, 0o644); err != nil {
		t.Fatalf("writing fixture: %s", err.Error())
	}

	data, typ, err := loadImage(fs, "firmware.bin", "")
	if err != nil {
		t.Fatalf("loadImage: %s", err.Error())
	}
	if len(data) != 3 || data[0] != 0xE9 {
		t.Errorf("data = %v", data)
	}
	if typ != flashlib.UpdateFirmware {
		t.Errorf("type = %s", typ)
	}

	if _, _, err := loadImage(fs, "empty.bin", ""); err == nil {
		t.Error("expected an error for an empty image")
	}
	if _, _, err := loadImage(fs, "missing.bin", ""); err == nil {
		t.Error("expected an error for a missing image")
	}
	if _, _, err := loadImage(fs, "firmware.bin", "bootloader"); err == nil {
		t.Error("expected an error for an unknown update type")
	}
}

func TestResolveUpdateType(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		explicit string
		want     flashlib.UpdateType
		wantErr  bool
	}{
		{"default is firmware", "app.bin", "", flashlib.UpdateFirmware, false},
		{"littlefs name", "littlefs.bin", "", flashlib.UpdateFilesystem, false},
		{"spiffs name", "my-spiffs-image.bin", "", flashlib.UpdateFilesystem, false},
		{"filesystem name", "Filesystem.img", "", flashlib.UpdateFilesystem, false},
		{"explicit wins over name", "littlefs.bin", "firmware", flashlib.UpdateFirmware, false},
		{"explicit filesystem", "app.bin", "filesystem", flashlib.UpdateFilesystem, false},
		{"explicit uppercased", "app.bin", "FIRMWARE", flashlib.UpdateFirmware, false},
		{"unknown explicit", "app.bin", "bootloader", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveUpdateType(tt.file, tt.explicit)
			if tt.wantErr {
				if err == nil {
					t.Error("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("resolveUpdateType: %s", err.Error())
			}
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}
